package engine

import (
	"context"
	"math"
	"testing"

	"github.com/mrcode/mealdose/internal/channel"
	"github.com/mrcode/mealdose/internal/config"
	"github.com/mrcode/mealdose/internal/models"
)

// fakeFoods serves a fixed set of meal rows.
type fakeFoods struct {
	rows    []models.MealRow
	cleared bool
}

func (f *fakeFoods) MealRows() ([]models.MealRow, error) {
	if f.cleared {
		return nil, nil
	}
	return f.rows, nil
}

func (f *fakeFoods) ClearMealRows() error {
	f.cleared = true
	return nil
}

// memState is an in-memory registration store.
type memState struct {
	state models.RegistrationState
	saves int
}

func (m *memState) SaveRegistration(s models.RegistrationState) error {
	m.state = s
	m.saves++
	return nil
}

func (m *memState) LoadRegistration() (models.RegistrationState, error) {
	return m.state, nil
}

// confirmChannel confirms every request.
type confirmChannel struct{}

func (confirmChannel) Name() string { return "stub" }

func (confirmChannel) Send(ctx context.Context, req channel.Request) (channel.Outcome, error) {
	return channel.Outcome{Kind: channel.OutcomeConfirmed}, nil
}

func testService(t *testing.T, foods *fakeFoods, state *memState) *Service {
	t.Helper()
	cfg := config.Default() // carb ratio 10, start-dose cap 30
	s := New(cfg, foods, state, nil, nil)
	s.RegisterChannel(confirmChannel{})
	if err := s.Rehydrate(); err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}
	return s
}

func mealOf50Carbs() *fakeFoods {
	return &fakeFoods{rows: []models.MealRow{
		{Food: models.FoodItem{Name: "pasta", Carbs: 50, Fat: 2, Protein: 7}, PortionServed: 100},
	}}
}

func TestService_MealFlow(t *testing.T) {
	foods := mealOf50Carbs()
	state := &memState{}
	s := testService(t, foods, state)

	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != models.StatusPendingDose {
		t.Fatalf("initial status = %s, want %s", status, models.StatusPendingDose)
	}

	// Start dose: planned 50 g is over the 30 g cap, ratio 10 -> 3.0 U.
	res, err := s.SubmitDose(context.Background(), models.DoseStart, "stub", 0)
	if err != nil {
		t.Fatalf("SubmitDose(start) error = %v", err)
	}
	if !res.Registered {
		t.Fatal("start dose not registered")
	}
	if math.Abs(res.Amounts.Carbs-30) > 1e-9 || math.Abs(res.Amounts.Bolus-3.0) > 1e-9 {
		t.Errorf("start dose = %+v, want carbs 30 bolus 3.0", res.Amounts)
	}

	reg := s.State()
	if !reg.StartDoseGiven {
		t.Error("StartDoseGiven not set")
	}
	if reg.MealDate == nil {
		t.Error("MealDate not stamped")
	}

	// Remaining: 20 g carbs, 5.0 - 3.0 = 2.0 U, plus the fat and protein.
	res, err = s.SubmitDose(context.Background(), models.DoseRemaining, "stub", 0)
	if err != nil {
		t.Fatalf("SubmitDose(remaining) error = %v", err)
	}
	if math.Abs(res.Amounts.Carbs-20) > 1e-9 || math.Abs(res.Amounts.Bolus-2.0) > 1e-9 {
		t.Errorf("remaining dose = %+v, want carbs 20 bolus 2.0", res.Amounts)
	}

	status, err = s.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != models.StatusComplete {
		t.Errorf("status after full registration = %s, want %s", status, models.StatusComplete)
	}

	if state.saves == 0 {
		t.Error("registration state never persisted")
	}
}

func TestService_PreBolusFlooredToPumpStep(t *testing.T) {
	s := testService(t, &fakeFoods{}, &memState{})

	res, err := s.SubmitDose(context.Background(), models.DosePreBolus, "stub", 1.23)
	if err != nil {
		t.Fatalf("SubmitDose(pre) error = %v", err)
	}
	if math.Abs(res.Amounts.Bolus-1.20) > 1e-9 {
		t.Errorf("pre-bolus = %v, want 1.20", res.Amounts.Bolus)
	}
}

func TestService_EndMeal(t *testing.T) {
	foods := mealOf50Carbs()
	s := testService(t, foods, &memState{})

	if _, err := s.SubmitDose(context.Background(), models.DoseStart, "stub", 0); err != nil {
		t.Fatalf("SubmitDose() error = %v", err)
	}
	if err := s.EndMeal(); err != nil {
		t.Fatalf("EndMeal() error = %v", err)
	}

	reg := s.State()
	if !reg.IsZero() || reg.MealDate != nil {
		t.Errorf("state after EndMeal = %+v, want zero", reg)
	}
	if !foods.cleared {
		t.Error("meal rows not cleared")
	}

	status, err := s.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != models.StatusAwaitingInput {
		t.Errorf("status after EndMeal = %s, want %s", status, models.StatusAwaitingInput)
	}
}

func TestService_OverrideChangesEffectiveRatio(t *testing.T) {
	s := testService(t, &fakeFoods{}, &memState{})

	base := s.EffectiveCarbRatio()
	if base != 10.0 {
		t.Fatalf("EffectiveCarbRatio() = %v, want default 10.0", base)
	}

	if err := s.ActivateOverride(200); err != nil {
		t.Fatalf("ActivateOverride() error = %v", err)
	}
	if got := s.EffectiveCarbRatio(); math.Abs(got-5.0) > 1e-9 {
		t.Errorf("EffectiveCarbRatio() = %v during 200%% override, want 5.0", got)
	}

	s.CancelOverride()
	if got := s.EffectiveCarbRatio(); got != base {
		t.Errorf("EffectiveCarbRatio() = %v after cancel, want %v", got, base)
	}
}

func TestService_RehydrateRestoresState(t *testing.T) {
	state := &memState{state: models.RegistrationState{
		RegisteredCarbs: 30,
		RegisteredBolus: 3.0,
	}}
	s := testService(t, mealOf50Carbs(), state)

	reg := s.State()
	if reg.RegisteredCarbs != 30 || reg.RegisteredBolus != 3.0 {
		t.Errorf("rehydrated state = %+v, want carbs 30 bolus 3.0", reg)
	}
}

func TestService_ResendUsesLatestBolus(t *testing.T) {
	s := testService(t, &fakeFoods{}, &memState{})

	if _, err := s.Resend(context.Background(), models.DosePreBolus, "stub"); err == nil {
		t.Error("Resend() succeeded with no bolus sent yet")
	}

	if _, err := s.SubmitDose(context.Background(), models.DosePreBolus, "stub", 1.5); err != nil {
		t.Fatalf("SubmitDose() error = %v", err)
	}

	res, err := s.Resend(context.Background(), models.DosePreBolus, "stub")
	if err != nil {
		t.Fatalf("Resend() error = %v", err)
	}
	if math.Abs(res.Amounts.Bolus-1.5) > 1e-9 {
		t.Errorf("resent bolus = %v, want 1.5", res.Amounts.Bolus)
	}
}

func TestService_UnknownChannel(t *testing.T) {
	s := testService(t, &fakeFoods{}, &memState{})

	if _, err := s.SubmitDose(context.Background(), models.DoseStart, "carrier-pigeon", 0); err == nil {
		t.Error("SubmitDose() succeeded with unknown channel")
	}
}

func TestService_CapWarning(t *testing.T) {
	cfg := config.Default()
	maxCarbs := 20.0
	cfg.Caps.MaxCarbs = &maxCarbs

	s := New(cfg, mealOf50Carbs(), &memState{}, nil, nil)
	s.RegisterChannel(confirmChannel{})
	if err := s.Rehydrate(); err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}

	res, err := s.SubmitDose(context.Background(), models.DoseStart, "stub", 0)
	if err != nil {
		t.Fatalf("SubmitDose() error = %v", err)
	}
	if !res.Capped {
		t.Error("Capped = false, want warning flag")
	}
	if math.Abs(res.Amounts.Carbs-20) > 1e-9 {
		t.Errorf("capped carbs = %v, want 20", res.Amounts.Carbs)
	}
	if math.Abs(res.Amounts.Bolus-2.0) > 1e-9 {
		t.Errorf("capped bolus = %v, want 2.0", res.Amounts.Bolus)
	}
}
