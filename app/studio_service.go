package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gostudio/domain/core"
	"gostudio/domain/event"
	rankingdomain "gostudio/domain/ranking"
	studio "gostudio/domain/session"
	"gostudio/domain/treatment"
	"gostudio/internal"
	"gostudio/internal/events"
	"gostudio/internal/hypothesis"
	intentresolver "gostudio/internal/intent"
	"gostudio/internal/plan"
	"gostudio/internal/profiling"
	"gostudio/internal/ranking"
	"gostudio/internal/reasoning"
	"gostudio/internal/session"
	"gostudio/internal/stats"
	treatmentengine "gostudio/internal/treatment"
	"gostudio/ports"
)

// StudioService drives guided analysis sessions through their phases. Every
// operation runs under the session's lock and leaves a persisted snapshot behind.
type StudioService struct {
	sessions  *session.Manager
	loader    ports.TableLoader
	reasoning *reasoning.Service
	sink      ports.EventSink

	profiler  *profiling.Profiler
	treatment *treatmentengine.Engine
	resolver  *intentresolver.Resolver
	generator *hypothesis.Generator
	tests     *stats.Engine
	ranker    *ranking.Engine
	planner   *plan.Planner
	executor  *plan.Executor

	logger *internal.Logger
}

// Dependencies are the collaborators of the service. A nil Sink discards events
// and a nil Reasoning falls back to templates.
type Dependencies struct {
	Sessions  *session.Manager
	Loader    ports.TableLoader
	Reasoning *reasoning.Service
	Sink      ports.EventSink
}

// Settings tune the analysis engines
type Settings struct {
	Stats   stats.Config
	Weights rankingdomain.Weights
}

// NewStudioService wires the analysis engines around deps
func NewStudioService(deps Dependencies, settings Settings) (*StudioService, error) {
	if deps.Sessions == nil || deps.Loader == nil {
		return nil, fmt.Errorf("studio service requires a session manager and a table loader")
	}
	ranker, err := ranking.NewEngine(settings.Weights)
	if err != nil {
		return nil, fmt.Errorf("invalid ranking weights: %w", err)
	}
	if deps.Reasoning == nil {
		deps.Reasoning = reasoning.NewService(nil, 0)
	}
	if deps.Sink == nil {
		deps.Sink = events.Nop{}
	}

	profiler := profiling.NewProfiler(profiling.DefaultConfig())
	return &StudioService{
		sessions:  deps.Sessions,
		loader:    deps.Loader,
		reasoning: deps.Reasoning,
		sink:      deps.Sink,
		profiler:  profiler,
		treatment: treatmentengine.NewEngine(profiler),
		resolver:  intentresolver.NewResolver(intentresolver.DefaultConfig()),
		generator: hypothesis.NewGenerator(),
		tests:     stats.NewEngine(settings.Stats),
		ranker:    ranker,
		planner:   plan.NewPlanner(),
		executor:  plan.NewExecutor(profiler),
		logger:    internal.DefaultLogger,
	}, nil
}

// ============================================================================
// SESSION LIFECYCLE
// ============================================================================

// CreateSession starts a new session in LANDING
func (s *StudioService) CreateSession(ctx context.Context) (*studio.Session, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	return copySession(sess)
}

// Snapshot returns a copy of the session
func (s *StudioService) Snapshot(ctx context.Context, id core.SessionID) (*studio.Session, error) {
	var out *studio.Session
	err := s.sessions.View(ctx, id, func(sess *studio.Session) error {
		var err error
		out, err = copySession(sess)
		return err
	})
	return out, err
}

// DeleteSession discards the session and its snapshot
func (s *StudioService) DeleteSession(ctx context.Context, id core.SessionID) error {
	return s.sessions.Delete(ctx, id)
}

// Reset returns the session to LANDING. The transcript is kept.
func (s *StudioService) Reset(ctx context.Context, id core.SessionID) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		sess.Reset(core.Now())
		s.publishPhase(sess)
		return nil
	})
}

// NavigateBack restores an earlier phase that the session already reached
func (s *StudioService) NavigateBack(ctx context.Context, id core.SessionID, target studio.Phase) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		if err := sess.NavigateBack(target, core.Now()); err != nil {
			return err
		}
		sess.Say(studio.RoleSystem, fmt.Sprintf("Returned to %s.", target), core.Now())
		s.publishPhase(sess)
		return nil
	})
}

// ============================================================================
// UPLOAD AND PROFILING
// ============================================================================

// Upload loads a file into a session in LANDING. A file that cannot become a
// table terminates the session.
func (s *StudioService) Upload(ctx context.Context, id core.SessionID, name string, r io.Reader) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		if sess.Phase() != studio.PhaseLanding || sess.Terminated {
			return s.reject(sess, studio.EventUpload)
		}
		t, err := s.loader.Load(ctx, name, r)
		if err != nil {
			if errors.Is(err, core.ErrCorruptedUpload) {
				s.fail(sess, err)
			}
			return err
		}

		now := core.Now()
		if err := s.transition(sess, studio.EventUpload, &studio.DataUploaded{FileName: name, Table: t, UploadedAt: now}); err != nil {
			return err
		}
		sess.Say(studio.RoleSystem, fmt.Sprintf("Uploaded %s: %d rows and %d columns.", name, t.NumRows(), t.NumCols()), now)
		return nil
	})
}

// StartAnalysis profiles the uploaded table, infers the domain, summarizes the
// dataset and proposes missing-value solutions, then waits for a goal
func (s *StudioService) StartAnalysis(ctx context.Context, id core.SessionID) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		up, ok := sess.Current.Payload.(*studio.DataUploaded)
		if !ok {
			return s.reject(sess, studio.EventProfiled)
		}

		prof := s.profiler.Profile(up.Table)
		domain := s.reasoning.InferDomain(ctx, prof)
		ready := studio.ProfileReady{
			DataUploaded: *up,
			Profile:      prof,
			Domain:       domain,
			Summary:      s.reasoning.SummarizeDataset(ctx, prof, domain),
			Solutions:    s.treatment.Suggest(prof),
		}
		if err := s.transition(sess, studio.EventProfiled, &ready); err != nil {
			return err
		}

		now := core.Now()
		sess.Say(studio.RoleAssistant, ready.Summary.Headline, now)
		if err := s.transition(sess, studio.EventAwaitIntent, &studio.WaitingForIntent{ProfileReady: ready}); err != nil {
			return err
		}
		sess.Say(studio.RoleAssistant, nextStepPrompt(ready), now)

		s.logger.Info("[StudioService] Session %s profiled %d columns (%s, %d solutions)",
			sess.ID, prof.ColumnCount, domain.Domain, len(ready.Solutions))
		return nil
	})
}

// ApplySolution applies a missing-value solution and regenerates the suggestions
// for the new table version. A stale solution is recorded as an error and the
// session returns to WAITING_FOR_INTENT.
func (s *StudioService) ApplySolution(ctx context.Context, id core.SessionID, solutionID string) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		holder, ok := sess.Current.Payload.(interface{ Profiled() studio.ProfileReady })
		phase := sess.Phase()
		if !ok || (phase != studio.PhaseProfileReady && phase != studio.PhaseWaitingForIntent) {
			return s.reject(sess, studio.EventTreated)
		}
		current := holder.Profiled()

		sol, found := findSolution(sess, current, solutionID)
		if !found {
			return fmt.Errorf("%w: %s", core.ErrSolutionNotFound, solutionID)
		}
		outcome, err := s.treatment.Apply(current.Table, current.Profile, sol)
		if err != nil {
			if core.IsRecoverable(err) {
				return s.failAndRecover(sess, err)
			}
			s.fail(sess, err)
			return err
		}

		next := current
		next.Table = outcome.Table
		next.Profile = outcome.Profile
		next.Solutions = s.treatment.Suggest(outcome.Profile)
		next.Treatments = append(append([]treatment.Result(nil), current.Treatments...), outcome.Result)
		next.Summary = s.reasoning.SummarizeDataset(ctx, outcome.Profile, current.Domain)

		var payload studio.Payload = &next
		if phase == studio.PhaseWaitingForIntent {
			payload = &studio.WaitingForIntent{ProfileReady: next}
		}
		if err := s.transition(sess, studio.EventTreated, payload); err != nil {
			return err
		}

		now := core.Now()
		sess.Say(studio.RoleAssistant, outcome.Result.Summary+".", now)
		sess.Say(studio.RoleAssistant, nextStepPrompt(next), now)
		return nil
	})
}

// findSolution looks in the current suggestions first, then in earlier ones so an
// outdated choice is reported as stale instead of unknown
func findSolution(sess *studio.Session, current studio.ProfileReady, id string) (treatment.Solution, bool) {
	for _, sol := range current.Solutions {
		if sol.ID == id && sol.TableVersion == current.Table.Version {
			return sol, true
		}
	}
	for i := len(sess.History) - 1; i >= 0; i-- {
		holder, ok := sess.History[i].Payload.(interface{ Profiled() studio.ProfileReady })
		if !ok {
			continue
		}
		for _, sol := range holder.Profiled().Solutions {
			if sol.ID == id {
				return sol, true
			}
		}
	}
	return treatment.Solution{}, false
}

// ============================================================================
// INTENT AND INVESTIGATION
// ============================================================================

// SubmitGoal resolves the goal against the profile. Targeted goals continue to a
// driver ranking and an answer (or stop for target validation); other goals get
// a plan awaiting approval.
func (s *StudioService) SubmitGoal(ctx context.Context, id core.SessionID, goal string) (*studio.Session, error) {
	goal = strings.TrimSpace(goal)
	return s.update(ctx, id, func(sess *studio.Session) error {
		waiting, ok := sess.Current.Payload.(*studio.WaitingForIntent)
		if !ok {
			return s.reject(sess, studio.EventIntentParsed)
		}
		if goal == "" {
			return &core.PhaseTransitionError{From: string(sess.Phase()), Event: string(studio.EventIntentParsed), Reason: "a goal is required"}
		}
		now := core.Now()
		sess.Say(studio.RoleUser, goal, now)

		res := s.resolver.Resolve(goal, waiting.Profile)
		parsed := studio.IntentParsed{WaitingForIntent: *waiting, Goal: goal, Resolution: res}
		if err := s.transition(sess, studio.EventIntentParsed, &parsed); err != nil {
			return err
		}
		if res.Downgraded {
			sess.Say(studio.RoleAssistant, "No column looks like an outcome for that question, so I will describe the data instead.", now)
		}

		switch {
		case !res.Category.NeedsTarget():
			return s.proposePlan(sess, parsed)
		case res.Ambiguous && len(res.Candidates) > 0:
			if err := s.transition(sess, studio.EventTargetAmbiguous, &studio.TargetValidationRequired{IntentParsed: parsed}); err != nil {
				return err
			}
			sess.Say(studio.RoleAssistant, fmt.Sprintf("Which column is the outcome you care about? Candidates: %s.",
				strings.Join(res.CandidateColumns(), ", ")), now)
			return nil
		case !res.Resolved():
			return s.failAndRecover(sess, &core.AmbiguousTargetError{Candidates: res.CandidateColumns()})
		}
		return s.investigate(ctx, sess, parsed)
	})
}

// ConfirmTarget applies the user's choice of outcome column and runs the investigation
func (s *StudioService) ConfirmTarget(ctx context.Context, id core.SessionID, column string) (*studio.Session, error) {
	column = strings.TrimSpace(column)
	return s.update(ctx, id, func(sess *studio.Session) error {
		pending, ok := sess.Current.Payload.(*studio.TargetValidationRequired)
		if !ok {
			return s.reject(sess, studio.EventInvestigate)
		}
		sess.Say(studio.RoleUser, fmt.Sprintf("Use %s as the outcome.", column), core.Now())

		res, err := s.resolver.Confirm(pending.Resolution, column, pending.Profile)
		if err != nil {
			if core.IsRecoverable(err) {
				return s.failAndRecover(sess, err)
			}
			return err
		}
		parsed := pending.IntentParsed
		parsed.Resolution = res
		return s.investigate(ctx, sess, parsed)
	})
}

// investigate generates hypotheses, runs every test, ranks the drivers and
// produces the answer
func (s *StudioService) investigate(ctx context.Context, sess *studio.Session, parsed studio.IntentParsed) error {
	res := parsed.Resolution
	set, err := s.generator.Generate(parsed.Profile, res.Target, res.TargetType)
	if err != nil {
		if core.IsRecoverable(err) {
			return s.failAndRecover(sess, err)
		}
		s.fail(sess, err)
		return err
	}
	investigating := studio.Investigating{IntentParsed: parsed, Hypotheses: set}
	if err := s.transition(sess, studio.EventInvestigate, &investigating); err != nil {
		return err
	}
	sess.Say(studio.RoleAssistant, fmt.Sprintf("Testing %d candidate drivers of %s.", len(set.Hypotheses), res.Target), core.Now())

	results, err := s.tests.Run(ctx, parsed.Table, set)
	if err != nil {
		// cancelled: go back to where the goal can be asked again
		if navErr := sess.NavigateBack(studio.PhaseWaitingForIntent, core.Now()); navErr != nil {
			s.logger.Error("[StudioService] Session %s could not leave INVESTIGATING: %v", sess.ID, navErr)
		}
		s.publishPhase(sess)
		return err
	}

	ranked := s.ranker.Rank(set, results)
	if !ranked.Tested() {
		entry, _ := parsed.Profile.Entry(res.Target)
		return s.failAndRecover(sess, &core.UnsupportedTargetError{
			Column: res.Target,
			Role:   string(entry.Role),
			Reason: "no predictor produced a usable test result",
		})
	}
	driverRanked := studio.DriverRanked{Investigating: investigating, Results: results, Ranking: ranked}
	if err := s.transition(sess, studio.EventRanked, &driverRanked); err != nil {
		return err
	}

	answer := s.reasoning.Answer(ctx, parsed.Goal, ranked)
	if err := s.transition(sess, studio.EventAnswered, &studio.AnswerReady{DriverRanked: driverRanked, Answer: answer}); err != nil {
		return err
	}
	sess.Say(studio.RoleAssistant, answer.Narrative, core.Now())

	done := event.New(sess.ID, event.AnalysisCompleted)
	done.Summary = fmt.Sprintf("ranked %d drivers of %s", len(ranked.Drivers), ranked.Target)
	done.Data = ranked.Top(5)
	s.sink.Publish(done)

	s.logger.Info("[StudioService] Session %s answered %q: %d drivers, %d flags",
		sess.ID, parsed.Goal, len(ranked.Drivers), len(ranked.Flags))
	return nil
}

// ============================================================================
// PLAN BRANCH
// ============================================================================

func (s *StudioService) proposePlan(sess *studio.Session, parsed studio.IntentParsed) error {
	category := parsed.Resolution.Category
	pl, err := s.planner.Plan(category, parsed.Profile)
	if err != nil {
		s.fail(sess, err)
		return err
	}
	if err := s.transition(sess, studio.EventPlanned, &studio.PlanReady{IntentParsed: parsed, Plan: pl}); err != nil {
		return err
	}

	steps := make([]string, len(pl.Steps))
	for i, step := range pl.Steps {
		steps[i] = fmt.Sprintf("%d. %s", i+1, step.Description)
	}
	sess.Say(studio.RoleAssistant, fmt.Sprintf("Here is the %s plan. Approve it to run:\n%s",
		strings.ToLower(strings.ReplaceAll(string(category), "_", " ")), strings.Join(steps, "\n")), core.Now())
	return nil
}

// ApprovePlan runs the pending plan and completes the session
func (s *StudioService) ApprovePlan(ctx context.Context, id core.SessionID) (*studio.Session, error) {
	return s.update(ctx, id, func(sess *studio.Session) error {
		ready, ok := sess.Current.Payload.(*studio.PlanReady)
		if !ok {
			return s.reject(sess, studio.EventApproved)
		}
		executing := studio.Executing{PlanReady: *ready, ApprovedAt: core.Now()}
		if err := s.transition(sess, studio.EventApproved, &executing); err != nil {
			return err
		}

		exec, err := s.executor.Execute(ctx, sess.ID, ready.Table, ready.Profile, ready.Plan, s.sink)
		if err != nil {
			if errors.Is(err, core.ErrInconsistentState) {
				s.fail(sess, err)
				return err
			}
			if navErr := sess.NavigateBack(studio.PhasePlanReady, core.Now()); navErr != nil {
				s.logger.Error("[StudioService] Session %s could not leave EXECUTING: %v", sess.ID, navErr)
			}
			s.publishPhase(sess)
			return err
		}
		if err := s.transition(sess, studio.EventExecuted, &studio.Completed{Executing: executing, Execution: exec}); err != nil {
			return err
		}

		now := core.Now()
		for _, r := range exec.Results {
			sess.Say(studio.RoleAssistant, r.Summary, now)
		}
		sess.Say(studio.RoleAssistant, fmt.Sprintf("Plan finished: %d of %d steps succeeded.",
			len(exec.Results)-exec.Failures(), len(exec.Results)), now)
		return nil
	})
}

// ============================================================================
// HELPERS
// ============================================================================

// update runs fn under the session lock and returns a copy of the result
func (s *StudioService) update(ctx context.Context, id core.SessionID, fn func(sess *studio.Session) error) (*studio.Session, error) {
	var out *studio.Session
	err := s.sessions.With(ctx, id, func(sess *studio.Session) error {
		fnErr := fn(sess)
		snapshot, err := copySession(sess)
		if err != nil {
			return err
		}
		out = snapshot
		return fnErr
	})
	return out, err
}

// transition applies a phase change and announces it
func (s *StudioService) transition(sess *studio.Session, ev studio.Event, next studio.Payload) error {
	if err := sess.Apply(ev, next, core.Now()); err != nil {
		if errors.Is(err, core.ErrInconsistentState) {
			s.fail(sess, err)
		}
		return err
	}
	s.publishPhase(sess)
	return nil
}

func (s *StudioService) publishPhase(sess *studio.Session) {
	e := event.New(sess.ID, event.PhaseChanged)
	e.Phase = string(sess.Phase())
	s.sink.Publish(e)
}

// reject reports an operation that is not legal in the current phase
func (s *StudioService) reject(sess *studio.Session, ev studio.Event) error {
	if sess.Terminated {
		return fmt.Errorf("%w: session %s", core.ErrSessionTerminated, sess.ID)
	}
	return &core.PhaseTransitionError{From: string(sess.Phase()), Event: string(ev)}
}

func (s *StudioService) fail(sess *studio.Session, err error) studio.ErrorRecord {
	rec := sess.Fail(err, core.Now())
	if rec.Recoverable {
		s.logger.Warn("[StudioService] Session %s: %s in %s: %s", sess.ID, rec.Kind, rec.Phase, rec.Message)
	} else {
		s.logger.Error("[StudioService] Session %s terminated: %s in %s: %s", sess.ID, rec.Kind, rec.Phase, rec.Message)
		sess.Say(studio.RoleSystem, "This session cannot continue: "+rec.Message+". Reset it to start over.", core.Now())
	}
	s.publishPhase(sess)
	return rec
}

// failAndRecover records a recoverable error and routes the session back to
// WAITING_FOR_INTENT with the latest profiled state. err is returned to the caller.
func (s *StudioService) failAndRecover(sess *studio.Session, err error) error {
	rec := s.fail(sess, err)
	latest, ok := sess.LatestProfile()
	if !rec.Recoverable || !ok {
		return err
	}
	if applyErr := s.transition(sess, studio.EventRecover, &studio.WaitingForIntent{ProfileReady: latest}); applyErr != nil {
		s.logger.Error("[StudioService] Session %s could not recover: %v", sess.ID, applyErr)
		return err
	}
	sess.Say(studio.RoleAssistant, s.recoveryPrompt(rec, latest), core.Now())
	return err
}

func copySession(sess *studio.Session) (*studio.Session, error) {
	data, err := studio.Encode(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session %s: %w", sess.ID, err)
	}
	return studio.Decode(data)
}

func nextStepPrompt(p studio.ProfileReady) string {
	if incomplete := p.Profile.IncompleteColumns(); len(incomplete) > 0 && len(p.Solutions) > 0 {
		names := make([]string, len(incomplete))
		for i, entry := range incomplete {
			names[i] = entry.Name
		}
		return fmt.Sprintf("%d columns have missing values (%s). Apply one of the %d suggested solutions, or tell me what you want to learn from the data.",
			len(incomplete), strings.Join(names, ", "), len(p.Solutions))
	}
	return "What would you like to learn from this data? For example: what drives revenue?"
}

func (s *StudioService) recoveryPrompt(rec studio.ErrorRecord, p studio.ProfileReady) string {
	switch rec.Kind {
	case core.KindStaleSolution:
		return fmt.Sprintf("That solution no longer matches the data (%s). Pick one of the %d refreshed suggestions or describe your goal.",
			rec.Message, len(p.Solutions))
	case core.KindAmbiguousTarget, core.KindUnsupportedTarget:
		return fmt.Sprintf("%s. Try rephrasing the goal and name the outcome column, for example one of: %s.",
			rec.Message, strings.Join(s.outcomeColumns(p), ", "))
	}
	return rec.Message + ". Describe your goal to continue."
}

// outcomeColumns lists the columns that could serve as a target
func (s *StudioService) outcomeColumns(p studio.ProfileReady) []string {
	var out []string
	for _, entry := range p.Profile.Columns {
		if _, err := s.resolver.ClassifyTarget(entry); err == nil {
			out = append(out, entry.Name)
		}
	}
	return out
}
