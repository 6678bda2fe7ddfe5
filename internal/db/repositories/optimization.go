package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"station-aflowx-optimizer/internal/domain"
)

// OptimizationRepo persists the optimization-service tables: agents,
// versions, evaluation cases, runs, round traces and the artifact index,
// using database/sql over modernc.org/sqlite.
type OptimizationRepo struct {
	db *sql.DB
}

// NewOptimizationRepo builds a repo bound to a shared *sql.DB; WithTx hands
// its methods an in-flight *sql.Tx through the execer interface below.
func NewOptimizationRepo(db *sql.DB) *OptimizationRepo {
	return &OptimizationRepo{db: db}
}

// execer is the subset of *sql.DB / *sql.Tx this repo needs, so WithTx can
// hand every method a transaction-scoped conn without duplicating the repo.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic (the UnitOfWork boundary from repositories.py).
func (r *OptimizationRepo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *OptimizationRepo) getOrCreateAgent(ctx context.Context, x execer, tenantID, name string) (int64, error) {
	var id int64
	err := x.QueryRowContext(ctx, `SELECT id FROM opt_agents WHERE tenant_id = ? AND name = ?`, tenantID, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := x.ExecContext(ctx, `INSERT INTO opt_agents (tenant_id, name) VALUES (?, ?)`, tenantID, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *OptimizationRepo) nextVersion(ctx context.Context, x execer, agentID int64) (int64, error) {
	var latest sql.NullInt64
	err := x.QueryRowContext(ctx, `SELECT MAX(version) FROM opt_agent_versions WHERE agent_id = ?`, agentID).Scan(&latest)
	if err != nil {
		return 0, err
	}
	if !latest.Valid {
		return 1, nil
	}
	return latest.Int64 + 1, nil
}

// CreateVersion registers a new blueprint version for agentName (creating
// the agent row if needed) plus its per-case evaluation results, in one
// transaction.
func (r *OptimizationRepo) CreateVersion(ctx context.Context, tenantID, agentName string, bp domain.WorkflowBlueprint, eval domain.EvaluationSummary, artifactPath string, lifecycle domain.Lifecycle, notes string) (domain.AgentVersionRecord, error) {
	blueprintJSON, err := json.Marshal(bp)
	if err != nil {
		return domain.AgentVersionRecord{}, err
	}

	var out domain.AgentVersionRecord
	err = r.WithTx(ctx, func(tx *sql.Tx) error {
		agentID, err := r.getOrCreateAgent(ctx, tx, tenantID, agentName)
		if err != nil {
			return err
		}
		version, err := r.nextVersion(ctx, tx, agentID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO opt_agent_versions (agent_id, version, lifecycle, blueprint_id, blueprint_json, score, artifact_path, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			agentID, version, string(lifecycle), bp.BlueprintID, string(blueprintJSON), eval.MeanScore, artifactPath, notes)
		if err != nil {
			return err
		}
		var versionRowID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM opt_agent_versions WHERE agent_id = ? AND version = ?`, agentID, version).Scan(&versionRowID); err != nil {
			return err
		}

		for _, c := range eval.CaseResults {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO opt_evaluation_cases (agent_version_id, case_id, question, expected, output, score, rationale, latency_ms, token_cost)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				versionRowID, c.CaseID, c.Question, c.Expected, c.Output, c.Score, c.Rationale, c.LatencyMs, c.TokenCost)
			if err != nil {
				return err
			}
		}

		out = domain.AgentVersionRecord{
			TenantID: tenantID, AgentName: agentName, Version: version,
			Lifecycle: lifecycle, BlueprintID: bp.BlueprintID, Score: eval.MeanScore,
			ArtifactPath: artifactPath, Notes: notes, CreatedAt: time.Now().UTC(),
		}
		return nil
	})
	return out, err
}

// ListVersions returns every version of agentName for tenantID, newest
// first.
func (r *OptimizationRepo) ListVersions(ctx context.Context, tenantID, agentName string) ([]domain.AgentVersionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.version, v.lifecycle, v.blueprint_id, v.score, v.artifact_path, v.notes, v.created_at
		FROM opt_agent_versions v JOIN opt_agents a ON a.id = v.agent_id
		WHERE a.tenant_id = ? AND a.name = ?
		ORDER BY v.version DESC`, tenantID, agentName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentVersionRecord
	for rows.Next() {
		var rec domain.AgentVersionRecord
		var lifecycle string
		if err := rows.Scan(&rec.Version, &lifecycle, &rec.BlueprintID, &rec.Score, &rec.ArtifactPath, &rec.Notes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.TenantID = tenantID
		rec.AgentName = agentName
		rec.Lifecycle = domain.Lifecycle(lifecycle)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetVersion fetches one (agentName, version) row scoped to tenantID.
func (r *OptimizationRepo) GetVersion(ctx context.Context, tenantID, agentName string, version int64) (domain.AgentVersionRecord, error) {
	var rec domain.AgentVersionRecord
	var lifecycle string
	err := r.db.QueryRowContext(ctx, `
		SELECT v.version, v.lifecycle, v.blueprint_id, v.score, v.artifact_path, v.notes, v.created_at
		FROM opt_agent_versions v JOIN opt_agents a ON a.id = v.agent_id
		WHERE a.tenant_id = ? AND a.name = ? AND v.version = ?`, tenantID, agentName, version).
		Scan(&rec.Version, &lifecycle, &rec.BlueprintID, &rec.Score, &rec.ArtifactPath, &rec.Notes, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.AgentVersionRecord{}, fmt.Errorf("agent version not found: %s@%d", agentName, version)
	}
	if err != nil {
		return domain.AgentVersionRecord{}, err
	}
	rec.TenantID = tenantID
	rec.AgentName = agentName
	rec.Lifecycle = domain.Lifecycle(lifecycle)
	return rec, nil
}

// UpdateLifecycle transitions (agentName, version) to lifecycle; promoting
// to DEPLOYED demotes any other DEPLOYED version of the same agent to
// VALIDATED, preserving the at-most-one-DEPLOYED-version invariant.
func (r *OptimizationRepo) UpdateLifecycle(ctx context.Context, tenantID, agentName string, version int64, lifecycle domain.Lifecycle) (domain.AgentVersionRecord, error) {
	var out domain.AgentVersionRecord
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		var agentID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM opt_agents WHERE tenant_id = ? AND name = ?`, tenantID, agentName).Scan(&agentID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("agent not found: %s", agentName)
			}
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE opt_agent_versions SET lifecycle = ? WHERE agent_id = ? AND version = ?`, string(lifecycle), agentID, version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("agent version not found: %s@%d", agentName, version)
		}

		if lifecycle == domain.LifecycleDeployed {
			if _, err := tx.ExecContext(ctx, `
				UPDATE opt_agent_versions SET lifecycle = ?
				WHERE agent_id = ? AND version != ? AND lifecycle = ?`,
				string(domain.LifecycleValidated), agentID, version, string(domain.LifecycleDeployed)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.AgentVersionRecord{}, err
	}
	return r.GetVersion(ctx, tenantID, agentName, version)
}

// SaveRun persists an OptimizationRun header plus its round traces and
// artifact index rows.
func (r *OptimizationRepo) SaveRun(ctx context.Context, run domain.OptimizationRun) error {
	return r.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO opt_runs (run_id, tenant_id, agent_name, task_desc, artifact_dir, best_blueprint_id, best_train_score, best_val_score, best_test_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.TenantID, run.AgentName, run.TaskDesc, run.ArtifactDir, run.BestBlueprintID,
			run.BestTrainScore, run.BestValScore, run.BestTestScore, run.CreatedAt)
		if err != nil {
			return err
		}

		for _, t := range run.RoundTraces {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO opt_round_traces (run_id, round_num, selected_node_id, selected_blueprint_id, mutation, train_objective, val_objective, best_train_objective, best_val_objective, improvement, regret, uncertainty, generalization_gap)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.RunID, t.RoundNum, string(t.SelectedNodeID), t.SelectedBlueprintID, t.Mutation,
				t.TrainObjective, t.ValObjective, t.BestTrainObjective, t.BestValObjective,
				t.Improvement, t.Regret, t.Uncertainty, t.GeneralizationGap)
			if err != nil {
				return err
			}
		}

		for _, a := range run.ArtifactIndex {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO opt_artifact_index (run_id, artifact_type, uri, checksum, size_bytes, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.RunID, string(a.ArtifactType), a.URI, a.Checksum, a.SizeBytes, a.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun reloads an OptimizationRun header plus its round traces and
// artifact index, scoped to tenantID.
func (r *OptimizationRepo) GetRun(ctx context.Context, tenantID, runID string) (domain.OptimizationRun, error) {
	var run domain.OptimizationRun
	var valScore, testScore sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, agent_name, task_desc, artifact_dir, best_blueprint_id, best_train_score, best_val_score, best_test_score, created_at
		FROM opt_runs WHERE run_id = ? AND tenant_id = ?`, runID, tenantID).
		Scan(&run.RunID, &run.TenantID, &run.AgentName, &run.TaskDesc, &run.ArtifactDir, &run.BestBlueprintID, &run.BestTrainScore, &valScore, &testScore, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.OptimizationRun{}, fmt.Errorf("optimization run not found: %s", runID)
	}
	if err != nil {
		return domain.OptimizationRun{}, err
	}
	if valScore.Valid {
		run.BestValScore = &valScore.Float64
	}
	if testScore.Valid {
		run.BestTestScore = &testScore.Float64
	}

	traceRows, err := r.db.QueryContext(ctx, `
		SELECT round_num, selected_node_id, selected_blueprint_id, mutation, train_objective, val_objective, best_train_objective, best_val_objective, improvement, regret, uncertainty, generalization_gap
		FROM opt_round_traces WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return domain.OptimizationRun{}, err
	}
	defer traceRows.Close()
	for traceRows.Next() {
		var t domain.SearchRoundTrace
		var nodeID string
		if err := traceRows.Scan(&t.RoundNum, &nodeID, &t.SelectedBlueprintID, &t.Mutation, &t.TrainObjective, &t.ValObjective, &t.BestTrainObjective, &t.BestValObjective, &t.Improvement, &t.Regret, &t.Uncertainty, &t.GeneralizationGap); err != nil {
			return domain.OptimizationRun{}, err
		}
		t.SelectedNodeID = domain.NodeID(nodeID)
		run.RoundTraces = append(run.RoundTraces, t)
	}

	artifactRows, err := r.db.QueryContext(ctx, `
		SELECT artifact_type, uri, checksum, size_bytes, created_at FROM opt_artifact_index WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return domain.OptimizationRun{}, err
	}
	defer artifactRows.Close()
	for artifactRows.Next() {
		var a domain.ArtifactIndexEntry
		var artifactType string
		if err := artifactRows.Scan(&artifactType, &a.URI, &a.Checksum, &a.SizeBytes, &a.CreatedAt); err != nil {
			return domain.OptimizationRun{}, err
		}
		a.RunID = runID
		a.ArtifactType = domain.ArtifactType(artifactType)
		run.ArtifactIndex = append(run.ArtifactIndex, a)
	}
	return run, nil
}
