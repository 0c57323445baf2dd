package repository

import (
	"database/sql"
)

// requireAffected returns errNone when the statement touched no rows.
func requireAffected(result sql.Result, errNone error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errNone
	}
	return nil
}
