package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE approval_chains (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				document_types TEXT[] NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				disabled_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE approval_steps (
				id VARCHAR(64) PRIMARY KEY,
				chain_id VARCHAR(64) NOT NULL REFERENCES approval_chains(id) ON DELETE CASCADE,
				step_number INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				approvers TEXT[] NOT NULL DEFAULT '{}',
				consensus_type VARCHAR(20) NOT NULL,
				parallel_approval BOOLEAN NOT NULL DEFAULT false,
				timeout_days INT NOT NULL DEFAULT 0,
				escalation_chain TEXT[] NOT NULL DEFAULT '{}',
				conditions JSONB,
				optional BOOLEAN NOT NULL DEFAULT false
			);

			CREATE INDEX idx_approval_steps_chain_id ON approval_steps(chain_id, step_number);

			CREATE TABLE approval_requests (
				id VARCHAR(64) PRIMARY KEY,
				document_id VARCHAR(255) NOT NULL,
				chain_id VARCHAR(64) NOT NULL REFERENCES approval_chains(id),
				requester_id VARCHAR(255) NOT NULL,
				status VARCHAR(30) NOT NULL,
				priority VARCHAR(20) NOT NULL,
				current_step INT NOT NULL,
				total_steps INT NOT NULL,
				assigned_to TEXT[] NOT NULL DEFAULT '{}',
				deadline TIMESTAMP WITH TIME ZONE,
				escalation_date TIMESTAMP WITH TIME ZONE,
				metadata JSONB,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approval_requests_status_deadline ON approval_requests(status, deadline);
			CREATE INDEX idx_approval_requests_document_id ON approval_requests(document_id);
			CREATE INDEX idx_approval_requests_assigned_to ON approval_requests USING GIN (assigned_to);

			CREATE TABLE approval_actions (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(64) NOT NULL UNIQUE,
				request_id VARCHAR(64) NOT NULL REFERENCES approval_requests(id) ON DELETE CASCADE,
				user_id VARCHAR(255) NOT NULL,
				action VARCHAR(30) NOT NULL,
				comments TEXT NOT NULL DEFAULT '',
				annotations JSONB,
				step_number INT NOT NULL,
				delegate_to VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_actions_request_id ON approval_actions(request_id, seq);
		`,
		2: `
			CREATE TABLE routing_rules (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				conditions JSONB NOT NULL DEFAULT '{}',
				chain_id VARCHAR(64) NOT NULL REFERENCES approval_chains(id),
				priority INT NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_routing_rules_active_priority ON routing_rules(active, priority DESC, created_at);
		`,
	}
}
