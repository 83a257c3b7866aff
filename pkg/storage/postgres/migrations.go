package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in dependency order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					global_role VARCHAR(50) NOT NULL DEFAULT 'user',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(255) NOT NULL UNIQUE,
					token_prefix VARCHAR(50) NOT NULL,
					name VARCHAR(255) NOT NULL,
					expires_at TIMESTAMP,
					revoked_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
				CREATE INDEX idx_api_tokens_token_hash ON api_tokens(token_hash);
				CREATE INDEX idx_api_tokens_expires_at ON api_tokens(expires_at);
			`,
		},
		{
			Version:     3,
			Description: "Create workspaces and workspace_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspaces (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS workspace_members (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(workspace_id, user_id)
				);

				CREATE INDEX idx_workspace_members_workspace_id ON workspace_members(workspace_id);
				CREATE INDEX idx_workspace_members_user_id ON workspace_members(user_id);

				CREATE VIEW workspace_members_view AS
				SELECT m.id, m.workspace_id, m.user_id, m.role, m.joined_at,
					u.email, u.display_name
				FROM workspace_members m
				JOIN users u ON u.id = m.user_id;
			`,
		},
		{
			Version:     4,
			Description: "Create workspace_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspace_invitations (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL,
					token VARCHAR(255) NOT NULL UNIQUE,
					invited_by BIGINT NOT NULL REFERENCES users(id),
					invited_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					accepted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					UNIQUE(workspace_id, email)
				);

				CREATE INDEX idx_workspace_invitations_workspace_id ON workspace_invitations(workspace_id);
				CREATE INDEX idx_workspace_invitations_token ON workspace_invitations(token);
				CREATE INDEX idx_workspace_invitations_expires_at ON workspace_invitations(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create projects and project_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					responsible_id BIGINT NOT NULL REFERENCES users(id),
					stage VARCHAR(50) NOT NULL DEFAULT 'active',
					sequence INT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_projects_workspace_id ON projects(workspace_id);

				CREATE TABLE IF NOT EXISTS project_members (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					workspace_id BIGINT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(project_id, user_id)
				);

				CREATE INDEX idx_project_members_project_id ON project_members(project_id);
				CREATE INDEX idx_project_members_user_id ON project_members(user_id);
				CREATE INDEX idx_project_members_workspace_id ON project_members(workspace_id);

				CREATE VIEW project_members_view AS
				SELECT m.id, m.project_id, m.workspace_id, m.user_id, m.role, m.joined_at,
					u.email, u.display_name
				FROM project_members m
				JOIN users u ON u.id = m.user_id;
			`,
		},
		{
			Version:     6,
			Description: "Create tasks table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					title VARCHAR(500) NOT NULL,
					description TEXT,
					status VARCHAR(50) NOT NULL DEFAULT 'todo',
					assignee_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
					sequence INT NOT NULL,
					created_by BIGINT NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tasks_project_id ON tasks(project_id);
				CREATE INDEX idx_tasks_assignee_id ON tasks(assignee_id);
				CREATE INDEX idx_tasks_status ON tasks(status);
			`,
		},
		{
			Version:     7,
			Description: "Create timesheet_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS timesheet_entries (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					task_id BIGINT REFERENCES tasks(id) ON DELETE SET NULL,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					date DATE NOT NULL,
					hours NUMERIC(6,2) NOT NULL,
					note TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_timesheet_entries_project_id ON timesheet_entries(project_id);
				CREATE INDEX idx_timesheet_entries_user_id ON timesheet_entries(user_id);
				CREATE INDEX idx_timesheet_entries_date ON timesheet_entries(date);
			`,
		},
		{
			Version:     8,
			Description: "Create comments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS comments (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
					parent_id BIGINT REFERENCES comments(id) ON DELETE CASCADE,
					author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					body TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_comments_task_id ON comments(task_id);
				CREATE INDEX idx_comments_project_id ON comments(project_id);
				CREATE INDEX idx_comments_parent_id ON comments(parent_id);
			`,
		},
		{
			Version:     9,
			Description: "Create attachments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS attachments (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					task_id BIGINT REFERENCES tasks(id) ON DELETE SET NULL,
					uploaded_by BIGINT NOT NULL REFERENCES users(id),
					file_name VARCHAR(500) NOT NULL,
					content_type VARCHAR(255) NOT NULL,
					size_bytes BIGINT NOT NULL,
					checksum VARCHAR(128) NOT NULL,
					storage_key VARCHAR(500) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_attachments_project_id ON attachments(project_id);
				CREATE INDEX idx_attachments_task_id ON attachments(task_id);
			`,
		},
		{
			Version:     10,
			Description: "Create audit_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					type VARCHAR(100) NOT NULL,
					actor_id BIGINT NOT NULL REFERENCES users(id),
					scope VARCHAR(50) NOT NULL,
					resource_id BIGINT NOT NULL,
					details JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_events_scope_resource ON audit_events(scope, resource_id);
				CREATE INDEX idx_audit_events_actor_id ON audit_events(actor_id);
				CREATE INDEX idx_audit_events_created_at ON audit_events(created_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
