package config

// ApplyDefaults fills unset zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.TokenMode == "" {
		cfg.Server.TokenMode = "auto"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./agrafes.db"
	}
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = 20
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = 200
	}
	if cfg.Query.DefaultWindow == 0 {
		cfg.Query.DefaultWindow = 10
	}
	if cfg.Align.DefaultSimilarityThreshold == 0 {
		cfg.Align.DefaultSimilarityThreshold = 0.8
	}
}
