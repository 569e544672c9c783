// Package sqlstore implements the actor, lock and workflow tables and the
// ordered queue on top of database/sql. The SQLite and PostgreSQL packages
// open the connection, run migrations and pick a Dialect; the queries here
// are shared.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the few places where SQLite and PostgreSQL differ.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool

	// LockRows is appended to the queue head selection.
	LockRows string
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true, LockRows: " FOR UPDATE SKIP LOCKED"}
)

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Names are the logical table names configured for the runtime. Each one
// partitions the shared physical tables through their namespace column.
type Names struct {
	Actors    string
	Locks     string
	Workflows string
	Queue     string
}

func (n Names) withDefaults() Names {
	if n.Actors == "" {
		n.Actors = "actors"
	}
	if n.Locks == "" {
		n.Locks = "locks"
	}
	if n.Workflows == "" {
		n.Workflows = "workflows"
	}
	if n.Queue == "" {
		n.Queue = "mailbox"
	}
	return n
}
