package internal

import (
	"guild-archive/archive"
	"guild-archive/db"
	"guild-archive/store"
)

type Bot struct {
	Archiver *archive.Archiver
	Store    *store.Store
	DB       *db.DB // nil when no run index is configured
}
