package config

import "time"

// Config is the root application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// ImportConfig holds bulk import/export settings. Chunk sizes bound the width
// of single bulk statements; very large statements exceed datastore timeouts.
type ImportConfig struct {
	ObjectChunkSize int    `yaml:"object_chunk_size" env:"IMPORT_OBJECT_CHUNK_SIZE" env-default:"10000"`
	CellChunkSize   int    `yaml:"cell_chunk_size"   env:"IMPORT_CELL_CHUNK_SIZE"   env-default:"20000"`
	ExportDir       string `yaml:"export_dir"        env:"IMPORT_EXPORT_DIR"        env-default:"./exports"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
