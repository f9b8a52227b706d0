package service

import "github.com/noah-isme/grade-flow-api/internal/models"

// permissionRule fixes what a role may touch in a given state.
type permissionRule struct {
	editable []models.ScoreField
	next     []models.GradeState
}

// permissionMatrix is the full (state, role) capability table. Looked up for
// boundary pre-filtering and re-checked authoritatively inside every mutating
// operation. The FINALIZED -> APPROVED_CONTINUOUS edge listed here is driven
// only through UnlockFinalized, never the generic transition.
var permissionMatrix = map[models.GradeState]map[models.UserRole]permissionRule{
	models.StateDraft: {
		models.RoleTeacher: {
			editable: []models.ScoreField{models.FieldContinuous, models.FieldPeriodic, models.FieldNote},
			next:     []models.GradeState{models.StatePendingReview},
		},
		models.RoleAdmin: {
			editable: []models.ScoreField{models.FieldContinuous, models.FieldPeriodic, models.FieldNote},
			next:     []models.GradeState{models.StatePendingReview},
		},
	},
	models.StatePendingReview: {
		models.RoleTeacher: {},
		models.RoleAdmin: {
			editable: []models.ScoreField{models.FieldContinuous, models.FieldPeriodic, models.FieldNote},
			next:     []models.GradeState{models.StateApprovedContinuous, models.StateDraft},
		},
	},
	models.StateApprovedContinuous: {
		models.RoleTeacher: {},
		models.RoleAdmin: {
			editable: []models.ScoreField{models.FieldExam, models.FieldNote},
			next:     []models.GradeState{models.StateFinalEntered},
		},
	},
	models.StateFinalEntered: {
		models.RoleTeacher: {},
		models.RoleAdmin: {
			editable: []models.ScoreField{models.FieldExam, models.FieldNote},
			next:     []models.GradeState{models.StateFinalized, models.StateApprovedContinuous},
		},
	},
	models.StateFinalized: {
		models.RoleTeacher: {},
		models.RoleAdmin: {
			next: []models.GradeState{models.StateApprovedContinuous},
		},
	},
}

// CanEditField reports whether the role may edit the field in the state.
func CanEditField(state models.GradeState, role models.UserRole, field models.ScoreField) bool {
	rule, ok := permissionMatrix[state][role]
	if !ok {
		return false
	}
	for _, editable := range rule.editable {
		if editable == field {
			return true
		}
	}
	return false
}

// AvailableTransitions returns the states the role may move the record to.
func AvailableTransitions(state models.GradeState, role models.UserRole) []models.GradeState {
	rule, ok := permissionMatrix[state][role]
	if !ok {
		return nil
	}
	next := make([]models.GradeState, len(rule.next))
	copy(next, rule.next)
	return next
}

// CanTransition reports whether the role may drive the given edge.
func CanTransition(state, to models.GradeState, role models.UserRole) bool {
	for _, next := range AvailableTransitions(state, role) {
		if next == to {
			return true
		}
	}
	return false
}

// transitionExists reports whether the edge exists for any role.
func transitionExists(state, to models.GradeState) bool {
	for _, rules := range permissionMatrix[state] {
		for _, next := range rules.next {
			if next == to {
				return true
			}
		}
	}
	return false
}
