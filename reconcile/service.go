// Package reconcile は取得・突き合わせ・保存・確定更新の一連の処理をまとめます。
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ejrbom/matching"
	"ejrbom/model"
	"ejrbom/sources"
	"ejrbom/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EJSource は EJ 発注残の取得元です。
type EJSource interface {
	FetchBacklog(ctx context.Context, r sources.DateRange) ([]model.OrderRecord, error)
	Ping(ctx context.Context) error
}

// RBOMSource は rBOM 発注明細の取得元です。
type RBOMSource interface {
	FetchOrderDetails(ctx context.Context, r sources.DateRange) ([]model.OrderDetailRecord, error)
	Ping(ctx context.Context) error
}

// RunResult は自動マッピング 1 回分の結果です。
type RunResult struct {
	RunID      string           `json:"runId"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	EJCount    int              `json:"ejCount"`
	RBOMCount  int              `json:"rbomCount"`
	Statistics model.Statistics `json:"statistics"`
}

// ConnectionStatus は接続テストの結果です。
type ConnectionStatus struct {
	EJ   error
	RBOM error
}

type Service struct {
	ej     EJSource
	rbom   RBOMSource
	store  *store.Store
	engine *matching.Engine
	cutoff time.Time
	log    logrus.FieldLogger

	mu       sync.Mutex
	session  *Session
	lastRun  *sources.DateRange
	lastEJ   []model.OrderRecord
	lastRBOM []model.OrderDetailRecord
}

func NewService(ej EJSource, rbom RBOMSource, st *store.Store, engine *matching.Engine, cutoff time.Time, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		ej:     ej,
		rbom:   rbom,
		store:  st,
		engine: engine,
		cutoff: cutoff,
		log:    log.WithField("component", "reconcile"),
	}
}

func (s *Service) Store() *store.Store { return s.store }

// Run は納期範囲のデータを取得して自動マッピングを実行し、結果スナップショットを置き換えます。
// 範囲が不正な場合や取得に失敗した場合は、保存済みのデータを変更せずにエラーを返します。
func (s *Service) Run(ctx context.Context, r sources.DateRange, conditionName string) (RunResult, error) {
	if err := r.Validate(s.cutoff); err != nil {
		return RunResult{}, err
	}

	ej, err := s.ej.FetchBacklog(ctx, r)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to fetch EJ backlog: %w", err)
	}
	rbom, err := s.rbom.FetchOrderDetails(ctx, r)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to fetch rBOM order details: %w", err)
	}

	manual, err := s.store.GetManualOverrides()
	if err != nil {
		return RunResult{}, err
	}
	fixed, err := s.store.GetFixedOverrides()
	if err != nil {
		return RunResult{}, err
	}

	rows := model.Rows(s.engine.Execute(ej, rbom, manual, fixed))
	if err := s.store.ReplaceResultSnapshot(rows); err != nil {
		return RunResult{}, fmt.Errorf("failed to save mapping results: %w", err)
	}

	runID := uuid.New().String()
	if conditionName == "" {
		conditionName = fmt.Sprintf("%s〜%s", r.FromString(), r.ToString())
	}
	if err := s.store.SaveExtractionCondition(conditionName, runID, r.FromString(), r.ToString()); err != nil {
		s.log.WithError(err).Warn("failed to record extraction condition")
	}

	s.mu.Lock()
	rc := r
	s.lastRun, s.lastEJ, s.lastRBOM = &rc, ej, rbom
	s.session = NewSession(rows)
	s.mu.Unlock()

	result := RunResult{
		RunID:      runID,
		From:       r.FromString(),
		To:         r.ToString(),
		EJCount:    len(ej),
		RBOMCount:  len(rbom),
		Statistics: matching.Statistics(rows),
	}
	s.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"from":    result.From,
		"to":      result.To,
		"ej":      result.EJCount,
		"rbom":    result.RBOMCount,
		"matched": result.Statistics.MatchedCount,
	}).Info("mapping run completed")
	return result, nil
}

// Session は現在の編集セッションを返します。未作成の場合は保存済みスナップショットから作ります。
func (s *Service) Session() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session, nil
	}
	rows, err := s.store.GetResultSnapshot()
	if err != nil {
		return nil, err
	}
	s.session = NewSession(rows)
	return s.session, nil
}

// CommitFixedEdits はセッションの確定チェックの変更をまとめて保存し、セッションを保存後の状態に更新します。
// 変更が無い場合は何もしません。
func (s *Service) CommitFixedEdits(sess *Session) (model.BulkFixedResult, error) {
	changes := sess.Changes()
	if len(changes) == 0 {
		return model.BulkFixedResult{}, nil
	}

	res, err := s.store.BulkSetFixedAndPersist(changes)
	if err != nil {
		return model.BulkFixedResult{}, err
	}

	rows, err := s.store.GetResultSnapshot()
	if err != nil {
		return res, err
	}
	sess.Reset(rows)
	return res, nil
}

// SetFixed は 1 行の確定状態を即時に保存します。固定マッピングの登録・削除も同時に行います。
func (s *Service) SetFixed(key model.MappingKey, fixed bool) (model.BulkFixedResult, error) {
	if err := key.Validate(); err != nil {
		return model.BulkFixedResult{}, err
	}
	rows, err := s.store.GetResultSnapshot()
	if err != nil {
		return model.BulkFixedResult{}, err
	}

	for _, r := range rows {
		if !r.Key().Equal(key) {
			continue
		}
		if r.Classification == model.ClassificationManual {
			return model.BulkFixedResult{}, fmt.Errorf("%w: %s", ErrManualRow, key)
		}
		r.IsFixed = fixed
		res, err := s.store.BulkSetFixedAndPersist([]model.FixedChange{{Key: key, Fixed: fixed, Row: r}})
		if err != nil {
			return res, err
		}
		s.resetSession()
		return res, nil
	}
	return model.BulkFixedResult{}, fmt.Errorf("%w: %s", store.ErrResultNotFound, key)
}

func (s *Service) resetSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// NearMisses は品目コードが一致し数量だけが異なる組み合わせを返します。
// 直前の実行と同じ範囲であれば、そのときの取得データを使います。
func (s *Service) NearMisses(ctx context.Context, r sources.DateRange) ([]model.NearMiss, error) {
	s.mu.Lock()
	cached := s.lastRun != nil && s.lastRun.From.Equal(r.From) && s.lastRun.To.Equal(r.To)
	ej, rbom := s.lastEJ, s.lastRBOM
	s.mu.Unlock()

	if !cached {
		if err := r.Validate(s.cutoff); err != nil {
			return nil, err
		}
		var err error
		if ej, err = s.ej.FetchBacklog(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to fetch EJ backlog: %w", err)
		}
		if rbom, err = s.rbom.FetchOrderDetails(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to fetch rBOM order details: %w", err)
		}
	}
	return s.engine.FindPotentialMatches(ej, rbom), nil
}

// Stats は保存済みスナップショットの集計を返します。
func (s *Service) Stats() (model.Statistics, error) {
	rows, err := s.store.GetResultSnapshot()
	if err != nil {
		return model.Statistics{}, err
	}
	return matching.Statistics(rows), nil
}

// TestConnections は EJ・rBOM それぞれへの接続を確認します。
func (s *Service) TestConnections(ctx context.Context) ConnectionStatus {
	return ConnectionStatus{
		EJ:   s.ej.Ping(ctx),
		RBOM: s.rbom.Ping(ctx),
	}
}
