package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docship/docship/pkg/types"
)

// evalCondition evaluates a rule condition string against a RunReport.
//
// Supported expressions (field operator value):
//
//	disposition == aborted
//	disposition != completed
//	scan_degraded == true
//	units_failed > 0
//	units_delivered < 1
//	files_found < 1
//	bytes > 1073741824
//	cleanup_failures > 0
//	delivery_attempts > 5
//	errors > 0
//	duration_seconds > 3600
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, rep *types.RunReport) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "disposition":
		return compareString(string(rep.Disposition), op, rhs), 0

	case "scan_degraded":
		want, err := strconv.ParseBool(rhs)
		if err != nil {
			return false, 0
		}
		v := 0.0
		if rep.ScanDegraded {
			v = 1
		}
		return compareString(strconv.FormatBool(rep.ScanDegraded), op, strconv.FormatBool(want)), v

	default:
		v, ok := numericField(field, rep)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// checkCondition reports whether cond is an expression evalCondition understands.
func checkCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("want \"field op value\", got %q", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	switch field {
	case "disposition":
		if op != "==" && op != "!=" {
			return fmt.Errorf("disposition supports == and != only")
		}
		switch types.Disposition(rhs) {
		case types.DispositionCompleted, types.DispositionPartiallyDelivered, types.DispositionAborted:
		default:
			return fmt.Errorf("unknown disposition %q", rhs)
		}
		return nil
	case "scan_degraded":
		if op != "==" && op != "!=" {
			return fmt.Errorf("scan_degraded supports == and != only")
		}
		if _, err := strconv.ParseBool(rhs); err != nil {
			return fmt.Errorf("scan_degraded: %w", err)
		}
		return nil
	}
	if _, ok := numericField(field, &types.RunReport{}); !ok {
		return fmt.Errorf("unknown field %q", field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return fmt.Errorf("unknown operator %q", op)
	}
	if _, err := strconv.ParseFloat(rhs, 64); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// numericField maps a field name to its value in the report.
func numericField(field string, rep *types.RunReport) (float64, bool) {
	switch field {
	case "units_failed":
		return float64(rep.UnitsFailed()), true
	case "units_delivered":
		return float64(rep.UnitsDelivered()), true
	case "files_found":
		return float64(rep.FilesFound), true
	case "bytes":
		return float64(rep.Bytes), true
	case "cleanup_failures":
		return float64(rep.CleanupFailures()), true
	case "delivery_attempts":
		return float64(rep.DeliveryAttempts()), true
	case "errors":
		return float64(len(rep.Errors)), true
	case "duration_seconds":
		return rep.Duration().Seconds(), true
	default:
		return 0, false
	}
}

func compareString(v, op, want string) bool {
	switch op {
	case "==":
		return v == want
	case "!=":
		return v != want
	default:
		return false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
