package server

// Icon is a web app manifest icon entry.
type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Density string `json:"density,omitempty"`
}

// Manifest is the web app manifest served at manifest.json.
type Manifest struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	Display         string `json:"display"`
	Scope           string `json:"scope,omitempty"`
	StartURL        string `json:"start_url"`
	BackgroundColor string `json:"background_color,omitempty"`
	ThemeColor      string `json:"theme_color,omitempty"`
	Icons           []Icon `json:"icons,omitempty"`
}

// DefaultManifest returns the manifest for the Thoth manager bundle.
func DefaultManifest(version string) Manifest {
	icons := make([]Icon, 0, 6)
	for _, ic := range []struct{ px, density string }{
		{"36", "0.75"},
		{"48", "1.0"},
		{"72", "1.5"},
		{"96", "2.0"},
		{"144", "3.0"},
		{"192", "4.0"},
	} {
		icons = append(icons, Icon{
			Src:     "https://cdn.thoth.pub/android-icon-" + ic.px + "x" + ic.px + ".png",
			Sizes:   ic.px + "x" + ic.px,
			Type:    "image/png",
			Density: ic.density,
		})
	}

	return Manifest{
		Name:            "Thoth",
		Version:         version,
		Description:     "Bibliographical metadata management system.",
		Display:         "standalone",
		StartURL:        ".",
		BackgroundColor: "#FFDD57",
		ThemeColor:      "#FFDD57",
		Icons:           icons,
	}
}
