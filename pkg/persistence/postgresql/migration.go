package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Rules, statuses and subjects
			CREATE TABLE automation_rules (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				scope JSONB NOT NULL DEFAULT '{}',
				trigger_config JSONB NOT NULL DEFAULT '{}',
				condition_config JSONB NOT NULL DEFAULT '{}',
				action_kind VARCHAR(50) NOT NULL,
				action_config JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_automation_rules_is_active ON automation_rules(is_active);

			CREATE TABLE subject_statuses (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				subject_type VARCHAR(255) NOT NULL DEFAULT '',
				parent_id VARCHAR(255) REFERENCES subject_statuses(id)
			);

			CREATE INDEX idx_subject_statuses_name ON subject_statuses(name, subject_type);
			CREATE INDEX idx_subject_statuses_parent_id ON subject_statuses(parent_id);

			CREATE TABLE subjects (
				id VARCHAR(255) PRIMARY KEY,
				subject_type VARCHAR(255) NOT NULL,
				status_id VARCHAR(255) NOT NULL,
				sales_source_id VARCHAR(255) NOT NULL DEFAULT '',
				sales_person_id VARCHAR(255) NOT NULL DEFAULT '',
				dates JSONB NOT NULL DEFAULT '{}',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_subjects_type_status ON subjects(subject_type, status_id);

			CREATE TABLE subject_labels (
				subject_id VARCHAR(255) NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
				label VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (subject_id, label)
			);

			CREATE TABLE sub_records (
				id VARCHAR(255) PRIMARY KEY,
				subject_id VARCHAR(255) NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
				kind VARCHAR(50) NOT NULL,
				anchor_date DATE,
				paid BOOLEAN NOT NULL DEFAULT false
			);

			CREATE INDEX idx_sub_records_open ON sub_records(kind) WHERE NOT paid AND anchor_date IS NOT NULL;

			CREATE TABLE tasks (
				id VARCHAR(255) PRIMARY KEY,
				rule_id VARCHAR(255) NOT NULL,
				subject_id VARCHAR(255) NOT NULL,
				sub_record_id VARCHAR(255),
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				assigned_to VARCHAR(255) NOT NULL DEFAULT '',
				deadline DATE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_tasks_subject_id ON tasks(subject_id);
			CREATE INDEX idx_tasks_rule_id ON tasks(rule_id);
		`,
		2: `
			-- Execution ledger: the primary keys are the idempotency guarantee
			CREATE TABLE date_trigger_executions (
				rule_id VARCHAR(255) NOT NULL,
				subject_id VARCHAR(255) NOT NULL,
				trigger_kind VARCHAR(50) NOT NULL,
				observed_date DATE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (rule_id, subject_id)
			);

			CREATE TABLE interval_trigger_executions (
				rule_id VARCHAR(255) NOT NULL,
				sub_record_id VARCHAR(255) NOT NULL,
				subject_id VARCHAR(255) NOT NULL,
				trigger_kind VARCHAR(50) NOT NULL,
				occurrence_index INTEGER NOT NULL DEFAULT 0,
				last_fired_at DATE,
				next_eligible_at DATE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (rule_id, sub_record_id)
			);

			CREATE INDEX idx_interval_trigger_executions_subject_id ON interval_trigger_executions(subject_id);
		`,
	}
}
