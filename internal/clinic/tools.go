// ABOUTME: Tool bindings exposing the booking engine over the dispatcher.
// ABOUTME: Decodes arguments, calls the engine, and translates domain errors to JSON-RPC codes.

package clinic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/clinic-gateway/internal/dispatch"
	"github.com/2389/clinic-gateway/internal/store"
)

// Tools returns the full tool set for the given engine, ready to register
// with the dispatcher.
func Tools(engine *Engine) []dispatch.Tool {
	return []dispatch.Tool{
		{
			Name:        "add_user",
			Description: "Register a new user with their first payment method and bill the enrollment amount.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"social_security_number": {"type": "integer"},
					"first_name": {"type": "string"},
					"last_name": {"type": "string"},
					"address": {"type": "string"},
					"email": {"type": "string"},
					"phone_number": {"type": "string"},
					"membership_type": {"type": "string", "enum": ["regular", "silver", "gold"]},
					"card_last_4": {"type": "integer"},
					"card_brand": {"type": "string"},
					"card_exp": {"type": "string", "description": "MM/YY"},
					"card_id": {"type": "string"},
					"amount": {"type": "number"}
				},
				"required": ["social_security_number", "first_name", "last_name", "address", "email", "phone_number", "membership_type", "card_last_4", "card_brand", "card_exp", "card_id", "amount"]
			}`),
			Handler: addUserHandler(engine),
		},
		{
			Name:        "add_payment_method",
			Description: "Attach another payment card to an existing user.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "integer"},
					"card_last_4": {"type": "integer"},
					"card_brand": {"type": "string"},
					"card_exp": {"type": "string", "description": "MM/YY"},
					"card_id": {"type": "string"}
				},
				"required": ["user_id", "card_last_4", "card_brand", "card_exp", "card_id"]
			}`),
			Handler: addPaymentMethodHandler(engine),
		},
		{
			Name:        "get_user_payment_methods",
			Description: "List the payment methods belonging to a user.",
			InputSchema: userIDSchema,
			Handler:     listPaymentMethodsHandler(engine),
		},
		{
			Name:        "get_available_dr_specialties",
			Description: "List the doctor specialties available at the clinic.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			Handler:     listSpecialtiesHandler(engine),
		},
		{
			Name:        "search_doctors",
			Description: "Search doctors by specialty, minimum rating, and maximum visit fee. Results include each doctor's next open slot.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"specialty": {"type": "string"},
					"min_rank": {"type": "number"},
					"max_fee": {"type": "number"}
				}
			}`),
			Handler: searchDoctorsHandler(engine),
		},
		{
			Name:        "search_available_appointments",
			Description: "Search open future appointment slots. Specialty is required; doctor name and a date range are optional. Returns at most 10 slots.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"specialty": {"type": "string"},
					"doctor_name": {"type": "string"},
					"start_date": {"type": "string", "description": "YYYY-MM-DD"},
					"end_date": {"type": "string", "description": "YYYY-MM-DD"}
				},
				"required": ["specialty"]
			}`),
			Handler: searchAppointmentsHandler(engine),
		},
		{
			Name:        "get_appointment_slot",
			Description: "Fetch a single appointment slot with its doctor details.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"slot_id": {"type": "integer"}},
				"required": ["slot_id"]
			}`),
			Handler: getSlotHandler(engine),
		},
		{
			Name:        "schedule_appointment",
			Description: "Book an open slot for a user and bill the visit fee to their payment method.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "integer"},
					"pay_id": {"type": "integer"},
					"slot_id": {"type": "integer"},
					"payment_amount": {"type": "number"}
				},
				"required": ["user_id", "pay_id", "slot_id", "payment_amount"]
			}`),
			Handler: scheduleAppointmentHandler(engine),
		},
		{
			Name:        "remove_appointment",
			Description: "Cancel a scheduled appointment and reopen its slot.",
			InputSchema: appointmentIDSchema,
			Handler:     removeAppointmentHandler(engine),
		},
		{
			Name:        "reschedule_appointment",
			Description: "Move a scheduled appointment to a different open slot. The original booking is untouched if the move fails.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"appointment_id": {"type": "string"},
					"new_slot_id": {"type": "integer"}
				},
				"required": ["appointment_id", "new_slot_id"]
			}`),
			Handler: rescheduleAppointmentHandler(engine),
		},
		{
			Name:        "get_user_appointments",
			Description: "List a user's appointments with their slot and doctor details.",
			InputSchema: userIDSchema,
			Handler:     listUserAppointmentsHandler(engine),
		},
		{
			Name:        "get_user_id",
			Description: "Look up a user's id by social security number.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"social_security_number": {"type": "integer"}},
				"required": ["social_security_number"]
			}`),
			Handler: getUserIDHandler(engine),
		},
		{
			Name:        "get_user",
			Description: "Fetch a user's profile by id.",
			InputSchema: userIDSchema,
			Handler:     getUserHandler(engine),
		},
		{
			Name:        "admin_reset_db",
			Description: "Drop all data and reseed the demo doctors and slots.",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
			Handler:     resetHandler(engine),
		},
	}
}

var (
	userIDSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"user_id": {"type": "integer"}},
		"required": ["user_id"]
	}`)
	appointmentIDSchema = json.RawMessage(`{
		"type": "object",
		"properties": {"appointment_id": {"type": "string"}},
		"required": ["appointment_id"]
	}`)
)

func addUserHandler(engine *Engine) dispatch.Handler {
	type args struct {
		SSN            int64   `json:"social_security_number"`
		FirstName      string  `json:"first_name"`
		LastName       string  `json:"last_name"`
		Address        string  `json:"address"`
		Email          string  `json:"email"`
		Phone          string  `json:"phone_number"`
		MembershipType string  `json:"membership_type"`
		CardLast4      int     `json:"card_last_4"`
		CardBrand      string  `json:"card_brand"`
		CardExp        string  `json:"card_exp"`
		CardID         string  `json:"card_id"`
		Amount         float64 `json:"amount"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		result, err := engine.RegisterUser(ctx, RegisterUserParams{
			SSN:        a.SSN,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Address:    a.Address,
			Email:      a.Email,
			Phone:      a.Phone,
			Membership: store.MembershipType(a.MembershipType),
			CardLast4:  a.CardLast4,
			CardBrand:  a.CardBrand,
			CardExp:    a.CardExp,
			CardID:     a.CardID,
			Amount:     a.Amount,
		})
		if err != nil {
			return nil, domainError(err)
		}
		return result, nil
	}
}

func addPaymentMethodHandler(engine *Engine) dispatch.Handler {
	type args struct {
		UserID    int64  `json:"user_id"`
		CardLast4 int    `json:"card_last_4"`
		CardBrand string `json:"card_brand"`
		CardExp   string `json:"card_exp"`
		CardID    string `json:"card_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		payID, err := engine.AddPaymentMethod(ctx, a.UserID, a.CardLast4, a.CardBrand, a.CardExp, a.CardID)
		if err != nil {
			return nil, domainError(err)
		}
		return map[string]int64{"pay_id": payID}, nil
	}
}

func listPaymentMethodsHandler(engine *Engine) dispatch.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		userID, err := decodeUserID(raw)
		if err != nil {
			return nil, err
		}
		methods, err := engine.ListPaymentMethods(ctx, userID)
		if err != nil {
			return nil, domainError(err)
		}
		out := make([]map[string]any, len(methods))
		for i, pm := range methods {
			out[i] = map[string]any{
				"pay_id":      pm.ID,
				"card_last_4": pm.CardLast4,
				"card_brand":  pm.CardBrand,
				"card_exp":    pm.CardExp,
				"card_id":     pm.CardID,
			}
		}
		return out, nil
	}
}

func listSpecialtiesHandler(engine *Engine) dispatch.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		specialties, err := engine.ListSpecialties(ctx)
		if err != nil {
			return nil, domainError(err)
		}
		return specialties, nil
	}
}

func searchDoctorsHandler(engine *Engine) dispatch.Handler {
	type args struct {
		Specialty string   `json:"specialty"`
		MinRank   *float64 `json:"min_rank"`
		MaxFee    *float64 `json:"max_fee"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		doctors, err := engine.SearchDoctors(ctx, store.DoctorFilter{
			Specialty: a.Specialty,
			MinRating: a.MinRank,
			MaxFee:    a.MaxFee,
		})
		if err != nil {
			return nil, domainError(err)
		}
		return doctors, nil
	}
}

func searchAppointmentsHandler(engine *Engine) dispatch.Handler {
	type args struct {
		Specialty  string `json:"specialty"`
		DoctorName string `json:"doctor_name"`
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		slots, err := engine.SearchAppointments(ctx, store.SlotFilter{
			Specialty:  a.Specialty,
			DoctorName: a.DoctorName,
			StartDate:  a.StartDate,
			EndDate:    a.EndDate,
		})
		if err != nil {
			return nil, domainError(err)
		}
		return slots, nil
	}
}

func getSlotHandler(engine *Engine) dispatch.Handler {
	type args struct {
		SlotID int64 `json:"slot_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		view, err := engine.GetSlot(ctx, a.SlotID)
		if err != nil {
			return nil, domainError(err)
		}
		return view, nil
	}
}

func scheduleAppointmentHandler(engine *Engine) dispatch.Handler {
	type args struct {
		UserID int64   `json:"user_id"`
		PayID  int64   `json:"pay_id"`
		SlotID int64   `json:"slot_id"`
		Amount float64 `json:"payment_amount"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		apptID, err := engine.ScheduleAppointment(ctx, a.UserID, a.PayID, a.SlotID, a.Amount)
		if err != nil {
			return nil, domainError(err)
		}
		return map[string]string{"appointment_id": apptID}, nil
	}
}

func removeAppointmentHandler(engine *Engine) dispatch.Handler {
	type args struct {
		AppointmentID string `json:"appointment_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if err := engine.CancelAppointment(ctx, a.AppointmentID); err != nil {
			return nil, domainError(err)
		}
		return map[string]string{"status": "cancelled"}, nil
	}
}

func rescheduleAppointmentHandler(engine *Engine) dispatch.Handler {
	type args struct {
		AppointmentID string `json:"appointment_id"`
		NewSlotID     int64  `json:"new_slot_id"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		newID, err := engine.RescheduleAppointment(ctx, a.AppointmentID, a.NewSlotID)
		if err != nil {
			return nil, domainError(err)
		}
		return map[string]string{"appointment_id": newID}, nil
	}
}

func listUserAppointmentsHandler(engine *Engine) dispatch.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		userID, err := decodeUserID(raw)
		if err != nil {
			return nil, err
		}
		appts, err := engine.ListUserAppointments(ctx, userID)
		if err != nil {
			return nil, domainError(err)
		}
		return appts, nil
	}
}

func getUserIDHandler(engine *Engine) dispatch.Handler {
	type args struct {
		SSN int64 `json:"social_security_number"`
	}
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var a args
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		id, err := engine.GetUserID(ctx, a.SSN)
		if err != nil {
			return nil, domainError(err)
		}
		return map[string]int64{"user_id": id}, nil
	}
}

func getUserHandler(engine *Engine) dispatch.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		userID, err := decodeUserID(raw)
		if err != nil {
			return nil, err
		}
		user, err := engine.GetUser(ctx, userID)
		if err != nil {
			return nil, domainError(err)
		}
		return map[string]any{
			"user_id":                user.ID,
			"social_security_number": user.SSN,
			"first_name":             user.FirstName,
			"last_name":              user.LastName,
			"address":                user.Address,
			"email":                  user.Email,
			"phone_number":           user.Phone,
			"enter_date":             user.EnterDate,
			"membership_type":        user.Membership,
		}, nil
	}
}

func resetHandler(engine *Engine) dispatch.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := engine.Reset(ctx); err != nil {
			return nil, domainError(err)
		}
		return map[string]string{"status": "reset"}, nil
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return dispatch.Errorf(dispatch.CodeInvalidParams, "invalid arguments: %v", err)
	}
	return nil
}

func decodeUserID(raw json.RawMessage) (int64, error) {
	var a struct {
		UserID int64 `json:"user_id"`
	}
	if err := decodeArgs(raw, &a); err != nil {
		return 0, err
	}
	return a.UserID, nil
}

// domainError converts engine sentinels into JSON-RPC errors carrying their
// reserved domain code. Unknown errors pass through and become internal at
// the dispatcher.
func domainError(err error) error {
	code := 0
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		code = dispatch.CodeSlotUnavailable
	case errors.Is(err, ErrNotFound):
		code = dispatch.CodeNotFound
	case errors.Is(err, ErrAlreadyTerminal):
		code = dispatch.CodeAlreadyTerminal
	case errors.Is(err, ErrInvalidPaymentMethod):
		code = dispatch.CodeInvalidPaymentMethod
	case errors.Is(err, ErrInPast):
		code = dispatch.CodeInPast
	case errors.Is(err, ErrValidation):
		code = dispatch.CodeValidation
	default:
		return err
	}
	return &dispatch.Error{Code: code, Message: err.Error()}
}
