package sapi

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
)

// Problem states reported by the service.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// maxTransientPollErrors is how many failed polls in a row Await tolerates.
const maxTransientPollErrors = 5

// ProblemRequest is one problem submission.
type ProblemRequest struct {
	Solver string                 `json:"solver"`
	Data   ProblemData            `json:"data"`
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

// ProblemStatus is the service's view of a submitted problem.
type ProblemStatus struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Solver       string  `json:"solver,omitempty"`
	Type         string  `json:"type,omitempty"`
	SubmittedOn  string  `json:"submitted_on,omitempty"`
	SolvedOn     string  `json:"solved_on,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Answer       *Answer `json:"answer,omitempty"`
}

// Done reports whether the problem reached a terminal state.
func (s *ProblemStatus) Done() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Submit posts one problem and returns its initial status.
func (c *Client) Submit(ctx context.Context, req ProblemRequest) (*ProblemStatus, error) {
	var out []ProblemStatus
	if err := c.do(ctx, "POST", "problems/", []ProblemRequest{req}, &out); err != nil {
		return nil, classify(err, "Submit", "submit problem")
	}
	if len(out) != 1 {
		return nil, apperrors.Errorf("expected 1 problem status, got %d", len(out)).
			WithComponent(component).WithOperation("Submit").WithKind(apperrors.KindTransport)
	}
	st := &out[0]
	if st.Status == StatusFailed {
		return nil, problemFailed(st, "Submit")
	}
	c.logger.Info("problem submitted",
		zap.String("problem_id", st.ID),
		zap.String("solver", req.Solver),
		zap.String("status", st.Status),
	)
	return st, nil
}

// Status fetches the current status of a problem, including its answer
// once completed.
func (c *Client) Status(ctx context.Context, id string) (*ProblemStatus, error) {
	var st ProblemStatus
	if err := c.do(ctx, "GET", "problems/"+url.PathEscape(id)+"/", nil, &st); err != nil {
		return nil, classify(err, "Status", "poll problem "+id)
	}
	return &st, nil
}

// Cancel asks the service to drop a pending problem.
func (c *Client) Cancel(ctx context.Context, id string) error {
	if err := c.do(ctx, "DELETE", "problems/"+url.PathEscape(id)+"/", nil, nil); err != nil {
		return classify(err, "Cancel", "cancel problem "+id)
	}
	return nil
}

// Await polls a problem with exponential backoff until it completes,
// fails, or ctx ends. On cancellation it asks the service to cancel the
// problem before returning ctx's error.
func (c *Client) Await(ctx context.Context, st *ProblemStatus) (*ProblemStatus, error) {
	var (
		attempt  int
		failures int
	)
	for {
		switch st.Status {
		case StatusCompleted:
			if st.Answer != nil {
				return st, nil
			}
		case StatusFailed, StatusCancelled:
			return nil, problemFailed(st, "Await")
		}

		attempt++
		wait := c.backoff.delay(attempt)
		c.logger.Debug("problem pending",
			zap.String("problem_id", st.ID),
			zap.String("status", st.Status),
			zap.Duration("next_poll", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.cancelDetached(st.ID)
			return nil, classify(ctx.Err(), "Await", "wait for problem "+st.ID)
		case <-timer.C:
		}

		next, err := c.Status(ctx, st.ID)
		if err != nil {
			var apiErr *APIError
			temporary := !apperrors.As(err, &apiErr) || apiErr.Temporary()
			if ctx.Err() != nil {
				c.cancelDetached(st.ID)
				return nil, classify(ctx.Err(), "Await", "wait for problem "+st.ID)
			}
			failures++
			if !temporary || failures >= maxTransientPollErrors {
				return nil, err
			}
			c.logger.Warn("poll failed, retrying", zap.String("problem_id", st.ID), zap.Error(err))
			continue
		}
		failures = 0
		st = next
	}
}

// cancelDetached cancels a problem on a fresh short-lived context so it
// still runs after the caller's context is gone.
func (c *Client) cancelDetached(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Cancel(ctx, id); err != nil {
		c.logger.Warn("could not cancel problem", zap.String("problem_id", id), zap.Error(err))
	}
}

func problemFailed(st *ProblemStatus, op string) error {
	msg := st.ErrorMessage
	if msg == "" {
		msg = "no error message"
	}
	return apperrors.Errorf("problem %s %s: %s", st.ID, st.Status, msg).
		WithComponent(component).WithOperation(op).WithKind(apperrors.KindRemote)
}
