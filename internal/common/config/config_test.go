package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	require.NoError(t, validate(cfg))
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DevJWTSecret, cfg.Auth.JWTSecret)
	assert.False(t, cfg.Preferences.RejectUnknownCategories)
}

func TestValidate_CollectsErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "bad port",
			mutate:  func(cfg *Config) { cfg.Server.Port = 0 },
			wantErr: []string{"server.port"},
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: []string{"database.driver"},
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Host = ""
			},
			wantErr: []string{"database.host"},
		},
		{
			name: "several problems at once",
			mutate: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
				cfg.Uploads.MaxBytes = 0
			},
			wantErr: []string{"logging.level", "uploads.maxBytes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)

			err := validate(cfg)
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("MYBUDGET_ENV", "production")
	cfg := defaultConfig(t)

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwtSecret")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "mybudget", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=mybudget sslmode=disable", d.DSN())
}
