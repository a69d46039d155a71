/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package migrate applies the schema under migrations/ with goose
// before either entrypoint (cmd/newsdigest, cmd/newsdigest-server)
// opens its store, so a fresh database is usable on first run.
package migrate

import (
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"

	"github.com/marketfeed/newsdigest/migrations"
)

// Up applies every pending migration embedded under migrations/ to db.
func Up(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "."); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}
