package model

// Mod is one entry in the mod listing.
//
// ID is assigned at creation and is how every operation addresses a mod;
// the position of a record in the document carries no meaning.
type Mod struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Type      string `json:"type"`
	Link      string `json:"link"`
	Desc      string `json:"desc"`
	Image     string `json:"image"`
	CreatedAt string `json:"createdAt"`
}
