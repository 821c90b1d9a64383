// Package main runs E2E scenarios of the booking wizard against a running
// desk API (cmd/api) that is itself wired to a booking backend.
//
// Scenarios cover:
//   - Step gating (no advancing without a service or a customer)
//   - Back on the first step
//   - Happy-path booking through all three steps
//   - Picking a busy or unknown time
//   - Cancelling an open wizard
//   - Catalog and staff listing
//
// The happy-path scenario creates a real appointment.
//
// Usage:
//
//	DESK_BASE_URL=... DESK_TOKEN=... E2E_SERVICE_ID=... go run scripts/e2e/run_e2e.go [scenario-name]
//	DESK_BASE_URL=... DESK_TOKEN=... E2E_SERVICE_ID=... go run scripts/e2e/run_e2e.go happy-path
//
// E2E_DATE (yyyy-mm-dd) defaults to tomorrow; E2E_PHONE defaults to testPhone.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	testPhone    = "05000000002"
	testCustomer = "E2E Test Customer"
	httpTimeout  = 20 * time.Second
)

var (
	deskBase  string
	token     string
	serviceID string
	date      string
	phone     string
	client    = &http.Client{Timeout: httpTimeout}
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type wizardState struct {
	ID       string `json:"id"`
	Mode     string `json:"mode"`
	Step     int    `json:"step"`
	StepName string `json:"step_name"`
	Draft    struct {
		CustomerName  string `json:"customer_name"`
		Phone         string `json:"phone"`
		ServiceID     string `json:"service_id"`
		Date          string `json:"date"`
		Time          string `json:"time"`
		StaffMemberID string `json:"staff_member_id"`
	} `json:"draft"`
	Slots struct {
		Available []string `json:"available_slots"`
		Busy      []string `json:"busy_slots"`
		All       []string `json:"all_slots"`
	} `json:"slots"`
}

type apiResponse struct {
	Status int
	Body   []byte
}

func (r apiResponse) errorCode() string {
	var e struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(r.Body, &e)
	return e.Code
}

func call(method, path string, payload interface{}) (apiResponse, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, deskBase+path, body)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return apiResponse{Status: resp.StatusCode, Body: data}, nil
}

func decodeState(r apiResponse) (wizardState, error) {
	var s wizardState
	if err := json.Unmarshal(r.Body, &s); err != nil {
		return s, fmt.Errorf("decode wizard (status %d): %w: %s", r.Status, err, string(r.Body))
	}
	return s, nil
}

func openWizard() (wizardState, error) {
	resp, err := call(http.MethodPost, "/wizard", nil)
	if err != nil {
		return wizardState{}, err
	}
	if resp.Status != http.StatusCreated {
		return wizardState{}, fmt.Errorf("open wizard returned %d: %s", resp.Status, string(resp.Body))
	}
	return decodeState(resp)
}

func wizardCall(id, method, action string, payload interface{}) (apiResponse, error) {
	path := "/wizard/" + id
	if action != "" {
		path += "/" + action
	}
	return call(method, path, payload)
}

func closeWizard(id string) {
	_, _ = wizardCall(id, http.MethodDelete, "", nil)
}

// toStep3 fills steps 1 and 2 and lands on the date/time step.
func toStep3(t *T, id string) (wizardState, bool) {
	steps := []struct {
		method, action string
		payload        interface{}
	}{
		{http.MethodPut, "service", map[string]string{"service_id": serviceID}},
		{http.MethodPost, "next", nil},
		{http.MethodPut, "customer", map[string]string{"name": testCustomer, "phone": phone}},
		{http.MethodPost, "next", nil},
		{http.MethodPut, "date", map[string]string{"date": date}},
	}
	var last apiResponse
	for _, s := range steps {
		resp, err := wizardCall(id, s.method, s.action, s.payload)
		if err != nil {
			t.fatalf("%s %s: %v", s.method, s.action, err)
			return wizardState{}, false
		}
		if resp.Status != http.StatusOK {
			t.fatalf("%s %s returned %d: %s", s.method, s.action, resp.Status, string(resp.Body))
			return wizardState{}, false
		}
		last = resp
	}
	state, err := decodeState(last)
	if err != nil {
		t.fatalf("%v", err)
		return wizardState{}, false
	}
	return state, true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func setup() error {
	resp, err := call(http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("health returned %d: %s", resp.Status, string(resp.Body))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioStepGating(t *T) {
	w, err := openWizard()
	if err != nil {
		t.fatalf("open wizard: %v", err)
		return
	}
	defer closeWizard(w.ID)

	t.check("opens on step 1", w.Step == 1)
	t.check("create mode", w.Mode == "create")

	resp, err := wizardCall(w.ID, http.MethodPost, "next", nil)
	if err != nil {
		t.fatalf("next: %v", err)
		return
	}
	t.check("next without service is refused (422)", resp.Status == http.StatusUnprocessableEntity)
	t.check("code is service_required", resp.errorCode() == "service_required")

	_, _ = wizardCall(w.ID, http.MethodPut, "service", map[string]string{"service_id": serviceID})
	_, _ = wizardCall(w.ID, http.MethodPost, "next", nil)
	resp, err = wizardCall(w.ID, http.MethodPost, "next", nil)
	if err != nil {
		t.fatalf("next: %v", err)
		return
	}
	t.check("next without customer is refused (422)", resp.Status == http.StatusUnprocessableEntity)
	t.check("code is customer_required", resp.errorCode() == "customer_required")
}

func scenarioBackOnFirstStep(t *T) {
	w, err := openWizard()
	if err != nil {
		t.fatalf("open wizard: %v", err)
		return
	}
	defer closeWizard(w.ID)

	resp, err := wizardCall(w.ID, http.MethodPost, "back", nil)
	if err != nil {
		t.fatalf("back: %v", err)
		return
	}
	t.check("back on step 1 is a conflict (409)", resp.Status == http.StatusConflict)
}

func scenarioHappyPath(t *T) {
	w, err := openWizard()
	if err != nil {
		t.fatalf("open wizard: %v", err)
		return
	}

	state, ok := toStep3(t, w.ID)
	if !ok {
		closeWizard(w.ID)
		return
	}
	t.check("on step 3", state.Step == 3)
	t.check("date kept", state.Draft.Date == date)
	t.check("time starts empty", state.Draft.Time == "")
	if len(state.Slots.Available) == 0 {
		t.fatalf("no available slots on %s for %s; pick another E2E_DATE", date, serviceID)
		closeWizard(w.ID)
		return
	}

	slot := state.Slots.Available[0]
	resp, err := wizardCall(w.ID, http.MethodPut, "time", map[string]string{"time": slot})
	if err != nil || resp.Status != http.StatusOK {
		t.fatalf("select time %s: %v (%d)", slot, err, resp.Status)
		closeWizard(w.ID)
		return
	}

	resp, err = wizardCall(w.ID, http.MethodPost, "submit", nil)
	if err != nil {
		t.fatalf("submit: %v", err)
		closeWizard(w.ID)
		return
	}
	if !t.checkStatus("submit succeeds", resp, http.StatusOK) {
		closeWizard(w.ID)
		return
	}
	var out struct {
		Appointment struct {
			ID              string `json:"id"`
			AppointmentDate string `json:"appointment_date"`
			AppointmentTime string `json:"appointment_time"`
		} `json:"appointment"`
	}
	_ = json.Unmarshal(resp.Body, &out)
	t.check("appointment has an id", out.Appointment.ID != "")
	t.check("appointment time matches", out.Appointment.AppointmentTime == slot)
	fmt.Printf("    created appointment %s at %s %s\n", out.Appointment.ID, out.Appointment.AppointmentDate, out.Appointment.AppointmentTime)

	resp, _ = wizardCall(w.ID, http.MethodGet, "", nil)
	t.check("wizard closed after submit (404)", resp.Status == http.StatusNotFound)
}

func scenarioBusyTime(t *T) {
	w, err := openWizard()
	if err != nil {
		t.fatalf("open wizard: %v", err)
		return
	}
	defer closeWizard(w.ID)

	state, ok := toStep3(t, w.ID)
	if !ok {
		return
	}
	pick := "03:17"
	for _, s := range state.Slots.Busy {
		if !contains(state.Slots.Available, s) {
			pick = s
			break
		}
	}
	resp, err := wizardCall(w.ID, http.MethodPut, "time", map[string]string{"time": pick})
	if err != nil {
		t.fatalf("select time: %v", err)
		return
	}
	t.check(fmt.Sprintf("time %s is refused (422)", pick), resp.Status == http.StatusUnprocessableEntity)
	t.check("code is slot_unavailable", resp.errorCode() == "slot_unavailable")

	resp, err = wizardCall(w.ID, http.MethodPost, "submit", nil)
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("submit without time is refused (422)", resp.Status == http.StatusUnprocessableEntity)
}

func scenarioCancel(t *T) {
	w, err := openWizard()
	if err != nil {
		t.fatalf("open wizard: %v", err)
		return
	}
	resp, err := wizardCall(w.ID, http.MethodDelete, "", nil)
	if err != nil {
		t.fatalf("cancel: %v", err)
		return
	}
	t.check("cancel returns 204", resp.Status == http.StatusNoContent)
	resp, _ = wizardCall(w.ID, http.MethodGet, "", nil)
	t.check("cancelled wizard is gone (404)", resp.Status == http.StatusNotFound)
}

func scenarioCatalog(t *T) {
	resp, err := call(http.MethodGet, "/services", nil)
	if err != nil {
		t.fatalf("services: %v", err)
		return
	}
	if !t.checkStatus("services listed", resp, http.StatusOK) {
		return
	}
	var services []struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Body, &services)
	found := false
	for _, s := range services {
		if s.ID == serviceID {
			found = true
		}
	}
	t.check("E2E_SERVICE_ID is visible to this session", found)

	resp, err = call(http.MethodGet, "/staff?service_id="+serviceID, nil)
	if err != nil {
		t.fatalf("staff: %v", err)
		return
	}
	t.checkStatus("qualified staff listed", resp, http.StatusOK)

	resp, _ = call(http.MethodGet, "/staff", nil)
	t.check("staff without service_id is a bad request", resp.Status == http.StatusBadRequest)
}

func (t *T) checkStatus(name string, resp apiResponse, want int) bool {
	ok := resp.Status == want
	t.check(name, ok)
	if !ok {
		fmt.Printf("      got %d: %s\n", resp.Status, string(resp.Body))
	}
	return ok
}

func main() {
	deskBase = os.Getenv("DESK_BASE_URL")
	token = os.Getenv("DESK_TOKEN")
	serviceID = os.Getenv("E2E_SERVICE_ID")
	if deskBase == "" || token == "" || serviceID == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DESK_BASE_URL, DESK_TOKEN and E2E_SERVICE_ID required")
		os.Exit(1)
	}
	date = os.Getenv("E2E_DATE")
	if date == "" {
		date = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	phone = os.Getenv("E2E_PHONE")
	if phone == "" {
		phone = testPhone
	}
	if err := setup(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: desk API not reachable:", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{"step-gating", scenarioStepGating},
		{"back-on-first-step", scenarioBackOnFirstStep},
		{"busy-time", scenarioBusyTime},
		{"cancel", scenarioCancel},
		{"catalog", scenarioCatalog},
		{"happy-path", scenarioHappyPath},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "✅"
		if t.failed > 0 {
			status = "❌"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\n❌ SOME TESTS FAILED")
		os.Exit(1)
	}
	fmt.Println("\n✅ ALL TESTS PASSED")
}
