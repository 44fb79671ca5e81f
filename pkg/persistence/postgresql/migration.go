package postgresql

import "github.com/dukex/agendaflow/pkg/persistence/sqlbase"

func migrations() []sqlbase.Migration {
	return []sqlbase.Migration{
		{Version: 1, Name: "create workflows", SQL: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				slug VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type VARCHAR(64) NOT NULL,
				steps JSONB NOT NULL DEFAULT '[]',
				integrations JSONB NOT NULL DEFAULT '[]',
				schedule JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflows_user_slug ON workflows(user_id, slug) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_user_id ON workflows(user_id);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`},
		{Version: 2, Name: "create workflow rubrics", SQL: `
			CREATE TABLE workflow_rubrics (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				category VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				constraint_type VARCHAR(16) NOT NULL CHECK (constraint_type IN ('hard', 'soft')),
				rule JSONB NOT NULL,
				weight DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK (weight >= 0),
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_rubrics_workflow_id ON workflow_rubrics(workflow_id);
		`},
		{Version: 3, Name: "create workflow executions", SQL: `
			CREATE TABLE workflow_executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				target_date DATE NOT NULL,
				status VARCHAR(32) NOT NULL,
				input_data JSONB,
				context JSONB,
				proposal JSONB,
				results JSONB,
				iteration INTEGER NOT NULL DEFAULT 0,
				feedback JSONB NOT NULL DEFAULT '[]',
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
		`},
		{Version: 4, Name: "add workflow execution revision", SQL: `
			ALTER TABLE workflow_executions ADD COLUMN revision BIGINT NOT NULL DEFAULT 0;
		`},
	}
}
