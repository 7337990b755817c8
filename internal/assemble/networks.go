package assemble

// Network identifies a downstream ad network.
type Network string

const (
	NetworkIronSource Network = "ironsource"
	NetworkUnity      Network = "unity"
	NetworkAppLovin   Network = "applovin"
	NetworkFacebook   Network = "facebook"
	NetworkGoogle     Network = "google"
	NetworkMintegral  Network = "mintegral"
	NetworkVungle     Network = "vungle"
	NetworkTikTok     Network = "tiktok"
	NetworkGeneric    Network = "generic"
)

const mib = 1024 * 1024

// NetworkSpec captures one network's published playable requirements.
type NetworkSpec struct {
	Network       Network `json:"network"`
	Name          string  `json:"name"`
	MaxBytes      int     `json:"max_bytes"`
	Format        string  `json:"format"` // "html" or "zip"
	MainFileName  string  `json:"main_file_name"`
	RequiresMRAID bool    `json:"requires_mraid"`
	Notes         string  `json:"notes,omitempty"`
}

// networkSpecs holds the published requirements per network.
var networkSpecs = map[Network]NetworkSpec{
	NetworkIronSource: {
		Network: NetworkIronSource, Name: "IronSource",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: true, Notes: "Single inline HTML file required",
	},
	NetworkUnity: {
		Network: NetworkUnity, Name: "Unity Ads",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: true, Notes: "Must include App Store/Play Store URLs",
	},
	NetworkAppLovin: {
		Network: NetworkAppLovin, Name: "AppLovin",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: true, Notes: "External requests require pre-approval",
	},
	NetworkFacebook: {
		Network: NetworkFacebook, Name: "Facebook",
		MaxBytes: 2 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: false, Notes: "Stricter size limit for HTML format",
	},
	NetworkGoogle: {
		Network: NetworkGoogle, Name: "Google Ads",
		MaxBytes: 5 * mib, Format: "zip", MainFileName: "index.html",
		RequiresMRAID: false, Notes: "Must be zipped before upload",
	},
	NetworkMintegral: {
		Network: NetworkMintegral, Name: "Mintegral",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: true,
	},
	NetworkVungle: {
		Network: NetworkVungle, Name: "Vungle",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "ad.html",
		RequiresMRAID: true, Notes: "Main file must be named ad.html",
	},
	NetworkTikTok: {
		Network: NetworkTikTok, Name: "TikTok",
		MaxBytes: 5 * mib, Format: "zip", MainFileName: "index.html",
		RequiresMRAID: true, Notes: "Requires config.json with orientation/language",
	},
	NetworkGeneric: {
		Network: NetworkGeneric, Name: "Generic/Universal",
		MaxBytes: 5 * mib, Format: "html", MainFileName: "index.html",
		RequiresMRAID: true, Notes: "Works with most networks",
	},
}

// Networks lists every supported network in stable order.
func Networks() []Network {
	return []Network{
		NetworkIronSource, NetworkUnity, NetworkAppLovin, NetworkFacebook,
		NetworkGoogle, NetworkMintegral, NetworkVungle, NetworkTikTok,
		NetworkGeneric,
	}
}

// Spec returns the spec for a network; unknown networks get the generic spec.
func Spec(n Network) NetworkSpec {
	if spec, ok := networkSpecs[n]; ok {
		return spec
	}
	return networkSpecs[NetworkGeneric]
}

// Known reports whether n is a supported network.
func Known(n Network) bool {
	_, ok := networkSpecs[n]
	return ok
}
