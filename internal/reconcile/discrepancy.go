package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

type Tier string

const (
	TierNormal    Tier = "normal"
	TierWarning   Tier = "warning"
	TierCritical  Tier = "critical"
	TierExcessive Tier = "excessive"
)

// Severity tier'ları karşılaştırmak için: büyük olan daha ciddi.
func (t Tier) Severity() int {
	switch t {
	case TierWarning:
		return 1
	case TierCritical:
		return 2
	case TierExcessive:
		return 3
	}
	return 0
}

// Thresholds fark eşikleri, artan sırada olmalı (Warning < Critical < Max).
type Thresholds struct {
	Warning  int64
	Critical int64
	Max      int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 5_000, Critical: 20_000, Max: 100_000}
}

func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Critical <= t.Warning || t.Max <= t.Critical {
		return fmt.Errorf("eşikler artan sırada ve pozitif olmalı: warning=%d critical=%d max=%d",
			t.Warning, t.Critical, t.Max)
	}
	return nil
}

// DiscrepancyResult kapanış farkının türetilmiş sonucu, saklanmaz.
type DiscrepancyResult struct {
	Value                 int64 `json:"value"`
	AbsoluteValue         int64 `json:"absolute_value"`
	Tier                  Tier  `json:"tier"`
	RequiresConfirmation  bool  `json:"requires_confirmation"`
	RequiresJustification bool  `json:"requires_justification"`
	RequiresOverride      bool  `json:"requires_override"`

	// sadece gösterim için
	Message string `json:"message"`
	Color   string `json:"color"`
}

// Classify beklenen ve sayılan bakiyeyi karşılaştırır. Sayım henüz girilmediyse nil döner.
// Eşikler en ciddiden başlayarak kontrol edilir, alt sınırlar dahildir.
func Classify(calculated int64, reported *int64, th Thresholds) *DiscrepancyResult {
	if reported == nil {
		return nil
	}

	diff := *reported - calculated
	abs := diff
	if abs < 0 {
		abs = -abs
	}

	res := &DiscrepancyResult{Value: diff, AbsoluteValue: abs}
	switch {
	case abs >= th.Max:
		res.Tier = TierExcessive
		res.RequiresConfirmation = true
		res.RequiresJustification = true
		res.RequiresOverride = true
		res.Color = "red"
	case abs >= th.Critical:
		res.Tier = TierCritical
		res.RequiresConfirmation = true
		res.RequiresJustification = true
		res.Color = "orange"
	case abs >= th.Warning:
		res.Tier = TierWarning
		res.RequiresConfirmation = true
		res.Color = "yellow"
	default:
		res.Tier = TierNormal
		res.Color = "green"
	}
	res.Message = message(res)
	return res
}

func message(r *DiscrepancyResult) string {
	direction := "fazla"
	if r.Value < 0 {
		direction = "eksik"
	}
	switch r.Tier {
	case TierExcessive:
		return fmt.Sprintf("Kasada %d %s var. Fark izin verilen sınırı aşıyor, yönetici onayı gerekli", r.AbsoluteValue, direction)
	case TierCritical:
		return fmt.Sprintf("Kasada %d %s var. Kritik fark, açıklama zorunlu", r.AbsoluteValue, direction)
	case TierWarning:
		return fmt.Sprintf("Kasada %d %s var. Lütfen sayımı onaylayın", r.AbsoluteValue, direction)
	}
	if r.Value == 0 {
		return "Kasa tam tutuyor"
	}
	return fmt.Sprintf("Kasada %d %s var, normal sınırlar içinde", r.AbsoluteValue, direction)
}

var (
	ErrConfirmationRequired  = errors.New("discrepancy requires confirmation")
	ErrJustificationRequired = errors.New("discrepancy requires justification")
	ErrOverrideRequired      = errors.New("discrepancy requires explicit override")
)

// Acknowledgement kasiyerin fark için verdiği onay/açıklama/override bilgisi.
type Acknowledgement struct {
	Confirmed     bool
	Justification string
	Override      bool
}

// Gate sonucun gerektirdiği onayların verilip verilmediğini kontrol eder.
// Aşırı fark (excessive) override olmadan asla geçmez.
func Gate(r *DiscrepancyResult, ack Acknowledgement) error {
	if r == nil {
		return nil
	}
	if r.RequiresOverride && !ack.Override {
		return ErrOverrideRequired
	}
	if r.RequiresJustification && strings.TrimSpace(ack.Justification) == "" {
		return ErrJustificationRequired
	}
	if r.RequiresConfirmation && !ack.Confirmed {
		return ErrConfirmationRequired
	}
	return nil
}
