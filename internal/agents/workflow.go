package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/llm"
	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// Step identifies a node of the turn state machine.
type Step string

const (
	StepCollect  Step = "collect"
	StepResearch Step = "research"
	StepJudge    Step = "judge"
	StepRespond  Step = "respond"
	StepEnd      Step = "end"
)

// TurnInput is one user message entering the pipeline.
type TurnInput struct {
	Message   string
	UserEmail string
	UserType  models.UserType
	RequestID string
	SessionID string
}

// TurnResult is what one completed turn hands back to the transport layer.
type TurnResult struct {
	Response       string
	CandidateID    string
	Context        *models.CandidateContext
	Recommendation *models.Recommendation
	MissingFields  []string
	Route          Step
}

// turnState is the mutable state threaded through the steps of one turn.
type turnState struct {
	input       TurnInput
	message     string
	candidateID string
	context     *models.CandidateContext
	history     []models.MessageRecord
	research    *models.ResearchRecord
	rec         *models.Recommendation
	missing     []string
	response    string
	route       Step
}

// Config tunes the workflow without reaching into the config package.
type Config struct {
	EnableJudge  bool
	HistoryLimit int
}

// Workflow runs the coordinator -> research -> judge pipeline for one turn.
// Steps execute sequentially; each decides the next step.
type Workflow struct {
	contexts ContextStore
	sessions SessionStore
	messages MessageStore
	data     DataSource

	coordinatorLLM llm.Client
	researchLLM    llm.Client
	judgeLLM       llm.Client

	emitter Emitter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewWorkflow(
	contexts ContextStore,
	sessions SessionStore,
	messages MessageStore,
	data DataSource,
	coordinatorLLM, researchLLM, judgeLLM llm.Client,
	emitter Emitter,
	cfg Config,
	logger *zap.Logger,
) *Workflow {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Workflow{
		contexts:       contexts,
		sessions:       sessions,
		messages:       messages,
		data:           data,
		coordinatorLLM: coordinatorLLM,
		researchLLM:    researchLLM,
		judgeLLM:       judgeLLM,
		emitter:        emitter,
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
	}
}

// Run executes one turn to completion. It never returns an error for
// pipeline-internal failures; those become turn responses per the error
// handling contract. Only context cancellation propagates.
func (w *Workflow) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	metrics.TurnsStarted.Inc()
	start := w.now()

	st := &turnState{
		input:   in,
		message: in.Message,
		context: &models.CandidateContext{},
		route:   StepCollect,
	}

	step := StepCollect
	for step != StepEnd {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stepStart := w.now()
		var next Step
		switch step {
		case StepCollect:
			next = w.coordinate(ctx, st)
		case StepResearch:
			next = w.researchStep(ctx, st)
		case StepJudge:
			next = w.judgeStep(ctx, st)
		case StepRespond:
			next = StepEnd
		default:
			next = StepEnd
		}
		metrics.StepDuration.WithLabelValues(string(step)).Observe(w.now().Sub(stepStart).Seconds())
		if step != StepRespond {
			st.route = step
		}
		step = next
	}

	status := "ok"
	if st.rec != nil && st.rec.Status != "" {
		status = st.rec.Status
	}
	metrics.TurnsCompleted.WithLabelValues(string(st.route), status).Inc()
	metrics.TurnDuration.Observe(w.now().Sub(start).Seconds())

	w.emit(st, streaming.EventResponse, "respond", st.response, nil)

	return &TurnResult{
		Response:       st.response,
		CandidateID:    st.candidateID,
		Context:        st.context,
		Recommendation: st.rec,
		MissingFields:  st.missing,
		Route:          st.route,
	}, nil
}

func (w *Workflow) emit(st *turnState, eventType, step, message string, payload map[string]interface{}) {
	if st.input.RequestID == "" {
		return
	}
	w.emitter.Publish(st.input.RequestID, streaming.Event{
		Type:    eventType,
		Step:    step,
		Message: message,
		Payload: payload,
	})
}
