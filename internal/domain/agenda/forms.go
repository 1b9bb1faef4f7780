package agenda

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, ok := ParseClock(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return ValidDate(fl.Field().String())
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		_, err := ParseStatus(fl.Field().String())
		return err == nil
	})
	return v
}

// AppointmentForm is the create/edit form. ID is only set when editing.
type AppointmentForm struct {
	ID              string `json:"ID_Agenda,omitempty"`
	Date            string `json:"data" validate:"required,isodate"`
	StartTime       string `json:"hora_inicio" validate:"required,clock"`
	DurationMinutes int    `json:"duracao_minutos" validate:"gt=0"`
	PatientID       string `json:"ID_Paciente"`
	PatientName     string `json:"nome_paciente"`
	PatientDocument string `json:"documento_paciente"`
	PatientPhone    string `json:"telefone_paciente"`
	Type            string `json:"tipo"`
	Reason          string `json:"motivo"`
	Origin          string `json:"origem"`
	Channel         string `json:"canal"`
	RoomID          string `json:"ID_Sala"`
	Professional    string `json:"profissional"`
	AllowOverbook   *bool  `json:"permite_encaixe,omitempty"`
	ChangePatient   bool   `json:"alterar_paciente,omitempty"`
}

// BlockForm blocks an interval on a date.
type BlockForm struct {
	Date            string `json:"data" validate:"required,isodate"`
	StartTime       string `json:"hora_inicio" validate:"required,clock"`
	DurationMinutes int    `json:"duracao_minutos" validate:"gt=0"`
}

// StatusForm is the body of a status change.
type StatusForm struct {
	NewStatus string `json:"novo_status" validate:"required,status"`
}

// Validate checks the fields every booking needs and normalizes the time.
// Missing or malformed date, time or duration all read as an incomplete
// form, which is what the user is told.
func (f *AppointmentForm) Validate() error {
	f.Date = strings.TrimSpace(f.Date)
	f.StartTime = strings.TrimSpace(f.StartTime)
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w (%s)", ErrIncompleteForm, fieldList(err))
	}
	f.StartTime, _ = NormalizeClock(f.StartTime)
	return nil
}

// ValidateUpdate is Validate for an edit, which also needs the ID.
func (f *AppointmentForm) ValidateUpdate() error {
	if strings.TrimSpace(f.ID) == "" {
		return ErrMissingID
	}
	return f.Validate()
}

func (f *BlockForm) Validate() error {
	f.Date = strings.TrimSpace(f.Date)
	f.StartTime = strings.TrimSpace(f.StartTime)
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w (%s)", ErrIncompleteBlock, fieldList(err))
	}
	f.StartTime, _ = NormalizeClock(f.StartTime)
	return nil
}

// Status validates the form and returns the canonical status.
func (f StatusForm) Status() (Status, error) {
	if err := validate.Struct(f); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, f.NewStatus)
	}
	return ParseStatus(f.NewStatus)
}

// createPayload is the Agenda.Criar body. New bookings may always be
// squeezed in unless the form says otherwise.
func (f AppointmentForm) createPayload() map[string]interface{} {
	allow := true
	if f.AllowOverbook != nil {
		allow = *f.AllowOverbook
	}
	return map[string]interface{}{
		"data":               f.Date,
		"hora_inicio":        f.StartTime,
		"duracao_minutos":    f.DurationMinutes,
		"ID_Paciente":        f.PatientID,
		"nome_paciente":      f.PatientName,
		"documento_paciente": f.PatientDocument,
		"telefone_paciente":  f.PatientPhone,
		"tipo":               f.Type,
		"motivo":             f.Reason,
		"origem":             f.Origin,
		"canal":              f.Channel,
		"ID_Sala":            f.RoomID,
		"profissional":       f.Professional,
		"permite_encaixe":    allow,
	}
}

// updatePayload is the Agenda.Atualizar body. Patient fields are only sent
// when the edit picked a different patient.
func (f AppointmentForm) updatePayload() map[string]interface{} {
	p := map[string]interface{}{
		"ID_Agenda":       f.ID,
		"data":            f.Date,
		"hora_inicio":     f.StartTime,
		"duracao_minutos": f.DurationMinutes,
		"tipo":            f.Type,
		"motivo":          f.Reason,
		"origem":          f.Origin,
		"canal":           f.Channel,
	}
	if f.ChangePatient {
		p["ID_Paciente"] = f.PatientID
		p["nome_paciente"] = f.PatientName
		p["documento_paciente"] = f.PatientDocument
		p["telefone_paciente"] = f.PatientPhone
	}
	return p
}

func fieldList(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return strings.Join(names, ", ")
}
