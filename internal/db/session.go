package db

import (
	"context"
	"database/sql"
	"fmt"

	"basekit/internal/domain"
	"basekit/internal/permission"
)

// SetSessionVars binds the actor's identity to the transaction so row-level
// security policies can read it. set_config with is_local=true scopes the
// values to the current transaction; an anonymous actor leaves every
// variable empty, which the policies treat as NULL.
func SetSessionVars(ctx context.Context, tx *sql.Tx, actor domain.Actor) error {
	const stmt = `SELECT set_config($1, $2, true), set_config($3, $4, true), set_config($5, $6, true)`
	_, err := tx.ExecContext(ctx, stmt,
		permission.SettingUserID, actor.UserID,
		permission.SettingOrganizationID, actor.OrganizationID,
		permission.SettingRole, actor.Role,
	)
	if err != nil {
		return fmt.Errorf("set session vars: %w", err)
	}
	return nil
}
