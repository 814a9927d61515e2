package config

import "fmt"

// Validate checks configuration consistency beyond what struct tags express.
func (c *Config) Validate() error {
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database: max_conns (%d) < min_conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}
	if c.Import.ObjectChunkSize <= 0 {
		return fmt.Errorf("import: object_chunk_size must be positive, got %d",
			c.Import.ObjectChunkSize)
	}
	if c.Import.CellChunkSize <= 0 {
		return fmt.Errorf("import: cell_chunk_size must be positive, got %d",
			c.Import.CellChunkSize)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}
