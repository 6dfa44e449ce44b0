package kitsu

// Status values as Kitsu spells them; "current" is what the site shows as watching.
type Status string

const (
	StatusCurrent   Status = "current"
	StatusCompleted Status = "completed"
	StatusOnHold    Status = "on_hold"
	StatusDropped   Status = "dropped"
	StatusPlanned   Status = "planned"
)

type Kind string

const (
	KindAnime Kind = "anime"
	KindManga Kind = "manga"
)

type WatchListEntry struct {
	ID        string
	Status    Status
	MediaLink string
}

type MediaItem struct {
	ID      string
	Kind    Kind
	Subtype string
	// Titles is keyed by locale tag ("en", "en_jp", "ja_jp"...).
	Titles map[string]string
}

// Title returns the title for a locale tag and whether Kitsu has one.
func (m MediaItem) Title(locale string) (string, bool) {
	t, ok := m.Titles[locale]
	if !ok || t == "" {
		return "", false
	}
	return t, true
}

type libraryEntryResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Status string `json:"status"`
	} `json:"attributes"`
	Relationships struct {
		Media struct {
			Links struct {
				Related string `json:"related"`
			} `json:"links"`
		} `json:"media"`
	} `json:"relationships"`
}

func (r libraryEntryResource) entry() WatchListEntry {
	return WatchListEntry{
		ID:        r.ID,
		Status:    Status(r.Attributes.Status),
		MediaLink: r.Relationships.Media.Links.Related,
	}
}

type libraryEntriesResponse struct {
	Data  []libraryEntryResource `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type mediaResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Subtype string            `json:"subtype"`
		Titles  map[string]string `json:"titles"`
	} `json:"attributes"`
}

func (r mediaResource) item() *MediaItem {
	titles := r.Attributes.Titles
	if titles == nil {
		titles = map[string]string{}
	}
	return &MediaItem{
		ID:      r.ID,
		Kind:    Kind(r.Type),
		Subtype: r.Attributes.Subtype,
		Titles:  titles,
	}
}

type mediaResponse struct {
	Data *mediaResource `json:"data"`
}

type mappingsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			ExternalSite string `json:"externalSite"`
			ExternalID   string `json:"externalId"`
		} `json:"attributes"`
	} `json:"data"`
}
