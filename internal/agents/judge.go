package agents

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/llm"
	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// judgeStep validates the recommendation against the collected data. The
// judge fails open: any LLM or parse failure leaves the recommendation as
// produced, it never blocks a turn.
func (w *Workflow) judgeStep(ctx context.Context, st *turnState) Step {
	if st.rec == nil {
		return StepRespond
	}
	w.emit(st, streaming.EventStatus, "judge", "Validating recommendation...", nil)

	responseText, err := w.judgeLLM.Complete(ctx, "", buildJudgePrompt(st.research, st.rec))
	if err != nil {
		metrics.JudgeVerdicts.WithLabelValues("fail_open").Inc()
		w.logger.Warn("judge failed, continuing without validation", zap.Error(err))
		return StepRespond
	}

	block := llm.ExtractJSONObject(responseText)
	if block == "" {
		metrics.JudgeVerdicts.WithLabelValues("fail_open").Inc()
		w.logger.Warn("judge output had no JSON, continuing without validation")
		return StepRespond
	}

	var verdict models.JudgeVerdict
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		metrics.JudgeVerdicts.WithLabelValues("fail_open").Inc()
		w.logger.Warn("judge output unparseable, continuing without validation", zap.Error(err))
		return StepRespond
	}

	st.rec.JudgeVerdict = &verdict
	if verdict.Approved {
		metrics.JudgeVerdicts.WithLabelValues("approved").Inc()
	} else {
		metrics.JudgeVerdicts.WithLabelValues("rejected").Inc()
		st.rec.Status = models.StatusNeedsReview
	}

	if st.rec.ResponseText != "" {
		st.response = st.rec.ResponseText
	}
	return StepRespond
}
