package pg

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql seeds/*.sql
var schemaFS embed.FS

// Migrations returns the embedded *.up.sql / *.down.sql files.
func Migrations() fs.FS {
	sub, err := fs.Sub(schemaFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Seeds returns the embedded demo data.
func Seeds() fs.FS {
	sub, err := fs.Sub(schemaFS, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}
