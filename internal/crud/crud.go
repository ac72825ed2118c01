package crud

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prose-ql/prose/internal/collection"
	"github.com/prose-ql/prose/internal/entity"
	"github.com/prose-ql/prose/internal/errs"
	"github.com/prose-ql/prose/internal/log"
	"github.com/prose-ql/prose/internal/query"
	"github.com/prose-ql/prose/internal/relate"
)

// DeletedAtField marks a soft-deleted entity. Update, Delete, Create's
// duplicate-id check and the unique-constraint check treat a
// soft-deleted entity as absent; queries, aggregates and foreign-key
// checks do not filter it out.
const DeletedAtField = "deletedAt"

// SkipRecord is one input createMany skipped under skipDuplicates,
// along with why.
type SkipRecord struct {
	Input  map[string]any
	Reason error
}

func collectionOrOpErr(reg Registry, op, name string) (*CollectionRuntime, error) {
	cr, ok := reg.Collection(name)
	if !ok {
		return nil, &errs.OperationError{Operation: op, Reason: fmt.Sprintf("no such collection %q", name)}
	}
	return cr, nil
}

func isSoftDeleted(cr *CollectionRuntime, e entity.Entity) bool {
	if !cr.SoftDelete {
		return false
	}
	_, ok := e.Get(DeletedAtField)
	return ok
}

// get fetches a live, non-soft-deleted entity, or NotFoundError.
func get(cr *CollectionRuntime, id string) (entity.Entity, error) {
	e, ok := cr.State.Get(id)
	if !ok || isSoftDeleted(cr, e) {
		return nil, &errs.NotFoundError{Collection: cr.Name, ID: id}
	}
	return e, nil
}

func validate(cr *CollectionRuntime, candidate entity.Entity) (entity.Entity, error) {
	if cr.Validator == nil {
		return candidate, nil
	}
	validated, issues := cr.Validator.Validate(map[string]any(candidate))
	if len(issues) > 0 {
		out := make([]errs.ValidationIssue, len(issues))
		for i, is := range issues {
			out[i] = errs.ValidationIssue{Field: is.Field, Message: is.Message, Expected: is.Expected, Received: is.Received}
		}
		return nil, &errs.ValidationError{Issues: out}
	}
	return validated, nil
}

// checkUnique scans cr for an existing entity (other than excludeID)
// whose fields values match on every field of set.
func checkUnique(cr *CollectionRuntime, set []string, candidate entity.Entity, excludeID string) *errs.UniqueConstraintError {
	values := make([]any, len(set))
	for i, f := range set {
		v, _ := candidate.Get(f)
		values[i] = v
	}
	for _, e := range cr.State.GetAll() {
		if e.ID() == excludeID {
			continue
		}
		if isSoftDeleted(cr, e) {
			continue
		}
		matches := true
		for i, f := range set {
			v, _ := e.Get(f)
			if !valuesEqual(v, values[i]) {
				matches = false
				break
			}
		}
		if matches {
			return &errs.UniqueConstraintError{
				Collection: cr.Name,
				Constraint: fmt.Sprintf("%v", set),
				Fields:     set,
				Values:     values,
				ExistingID: e.ID(),
			}
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	return a == b
}

// checkRefs validates every declared ref field present and non-nil on
// candidate. A field absent or explicitly nil is not checked here —
// required-ness is the schema's job.
func checkRefs(reg Registry, cr *CollectionRuntime, candidate entity.Entity) error {
	existsFn := exists(reg)
	for _, ref := range cr.Refs {
		value, ok := candidate.Get(ref.Field)
		if !ok {
			continue
		}
		if !relate.CheckRef(ref, value, existsFn) {
			return &errs.ForeignKeyError{Collection: cr.Name, Field: ref.Field, Value: value, TargetCollection: ref.Target}
		}
	}
	return nil
}

func persistAppend(cr *CollectionRuntime, e entity.Entity) {
	if cr.Persist == nil {
		return
	}
	if err := cr.Persist.Append(e); err != nil {
		log.Warnw("persist append failed", "collection", cr.Name, "id", e.ID(), "error", err)
	}
}

func persistFlush(cr *CollectionRuntime) {
	if cr.Persist == nil {
		return
	}
	if err := cr.Persist.Flush(cr.State.GetAll()); err != nil {
		log.Warnw("persist flush failed", "collection", cr.Name, "error", err)
	}
}

// Create inserts a new entity into collectionName, resolving an id
// when input omits one. See spec §4.4: validate, check duplicate,
// check unique constraints, check foreign keys, insert, index.
func Create(reg Registry, collectionName string, input map[string]any) (entity.Entity, error) {
	cr, err := collectionOrOpErr(reg, "create", collectionName)
	if err != nil {
		return nil, err
	}
	if cr.AppendOnly {
		// append-only still allows create; it only forbids update/delete.
	}

	candidate := make(map[string]any, len(input)+1)
	for k, v := range input {
		candidate[k] = v
	}
	id, _ := candidate[entity.IDField].(string)
	if id == "" {
		id = uuid.NewString()
		candidate[entity.IDField] = id
	}

	validated, err := validate(cr, entity.Entity(candidate))
	if err != nil {
		return nil, err
	}

	if existing, ok := cr.State.Get(id); ok && !isSoftDeleted(cr, existing) {
		return nil, &errs.DuplicateKeyError{Collection: cr.Name, Field: entity.IDField, Value: id, ExistingID: id}
	}

	for _, set := range cr.UniqueSets {
		if dup := checkUnique(cr, set, validated, ""); dup != nil {
			return nil, dup
		}
	}

	if err := checkRefs(reg, cr, validated); err != nil {
		return nil, err
	}

	cr.State.Set(id, validated)
	cr.Index.OnCreate(validated)
	persistAppend(cr, validated)

	return validated, nil
}

// CreateMany creates every input in order. When skipDuplicates is
// false, the whole call is all-or-nothing: any failure discards every
// create attempted so far. When true, DuplicateKeyError and
// ForeignKeyError failures are recorded in the returned skip list
// instead of aborting; any other error still aborts the call.
func CreateMany(reg Registry, collectionName string, inputs []map[string]any, skipDuplicates bool) ([]entity.Entity, []SkipRecord, error) {
	scratch := newScratch(reg)
	var created []entity.Entity
	var skipped []SkipRecord
	for _, input := range inputs {
		e, err := Create(scratch, collectionName, input)
		if err != nil {
			if skipDuplicates && isSkippable(err) {
				skipped = append(skipped, SkipRecord{Input: input, Reason: err})
				continue
			}
			return nil, nil, err
		}
		created = append(created, e)
	}
	scratch.commit()
	return created, skipped, nil
}

func isSkippable(err error) bool {
	var dup *errs.DuplicateKeyError
	var fk *errs.ForeignKeyError
	return errors.As(err, &dup) || errors.As(err, &fk)
}

// Update applies patch to the entity identified by id in
// collectionName, per spec §4.4's fetch/apply/validate/recheck
// sequence.
func Update(reg Registry, collectionName, id string, rawPatch map[string]any) (entity.Entity, error) {
	cr, err := collectionOrOpErr(reg, "update", collectionName)
	if err != nil {
		return nil, err
	}
	old, err := get(cr, id)
	if err != nil {
		return nil, err
	}
	if cr.AppendOnly {
		return nil, &errs.OperationError{Operation: "update", Reason: fmt.Sprintf("%s is append-only", cr.Name)}
	}

	patch := NormalizePatch(rawPatch)
	merged, err := ApplyPatch(old, patch)
	if err != nil {
		return nil, &errs.OperationError{Operation: "update", Reason: err.Error()}
	}

	validated, err := validate(cr, merged)
	if err != nil {
		return nil, err
	}

	for _, set := range cr.UniqueSets {
		if dup := checkUnique(cr, set, validated, id); dup != nil {
			return nil, dup
		}
	}

	for _, ref := range cr.Refs {
		newValue, hasNew := validated.Get(ref.Field)
		if !hasNew {
			continue // field cleared or absent: nothing to validate
		}
		oldValue, _ := old.Get(ref.Field)
		if oldValue == newValue {
			continue
		}
		if !relate.CheckRef(ref, newValue, exists(reg)) {
			return nil, &errs.ForeignKeyError{Collection: cr.Name, Field: ref.Field, Value: newValue, TargetCollection: ref.Target}
		}
	}

	cr.State.Set(id, validated)
	cr.Index.OnUpdate(old, validated)
	persistFlush(cr)

	return validated, nil
}

// UpdateMany applies rawPatch to every entity matching where, all at
// once: either every matched entity updates, or (on the first
// failure) none of them do.
func UpdateMany(reg Registry, collectionName string, where query.Where, rawPatch map[string]any) ([]entity.Entity, error) {
	cr, err := collectionOrOpErr(reg, "updateMany", collectionName)
	if err != nil {
		return nil, err
	}
	matches := query.Run(cr.State.Snapshot(), cr.Index, query.Options{Where: where}).Collect()

	scratch := newScratch(reg)
	updated := make([]entity.Entity, 0, len(matches))
	for _, e := range matches {
		u, err := Update(scratch, collectionName, e.ID(), rawPatch)
		if err != nil {
			return nil, err
		}
		updated = append(updated, u)
	}
	scratch.commit()
	return updated, nil
}

// Delete removes the entity identified by id from collectionName. When
// soft is true and the collection declares soft delete, the entity is
// marked rather than removed. A hard delete enforces every declared
// inverse relationship's policy: restrict blocks the delete, cascade
// transitively removes referrers, setNull clears the referring field.
func Delete(reg Registry, collectionName, id string, soft bool) (entity.Entity, error) {
	cr, err := collectionOrOpErr(reg, "delete", collectionName)
	if err != nil {
		return nil, err
	}
	old, err := get(cr, id)
	if err != nil {
		return nil, err
	}
	if cr.AppendOnly {
		return nil, &errs.OperationError{Operation: "delete", Reason: fmt.Sprintf("%s is append-only", cr.Name)}
	}

	if soft && cr.SoftDelete {
		tombstoned := old.With(DeletedAtField, time.Now().UTC())
		cr.State.Set(id, tombstoned)
		cr.Index.OnUpdate(old, tombstoned)
		persistFlush(cr)
		return old, nil
	}

	inverses := reg.Inverses(collectionName)
	lookup := lookupByField(reg)

	if blocker := relate.CheckRestrict(collectionName, id, inverses, lookup); blocker != nil {
		return nil, &errs.ForeignKeyError{
			Collection:       blocker.Collection,
			Field:            blocker.Field,
			Value:            id,
			TargetCollection: collectionName,
		}
	}

	for _, target := range relate.SetNullTargets(collectionName, id, inverses, lookup) {
		targetCR, ok := reg.Collection(target.Collection)
		if !ok {
			continue
		}
		nulled := target.Entity.With(target.Field, nil)
		targetCR.State.Set(nulled.ID(), nulled)
		targetCR.Index.OnUpdate(target.Entity, nulled)
		persistFlush(targetCR)
	}

	plan := relate.PlanCascade(collectionName, id, reg.Inverses, lookup)
	for coll, ids := range plan.Removed {
		targetCR, ok := reg.Collection(coll)
		if !ok {
			continue
		}
		for removedID := range ids {
			e, ok := targetCR.State.Get(removedID)
			if !ok {
				continue
			}
			targetCR.State.Remove(removedID)
			targetCR.Index.OnDelete(e)
		}
		persistFlush(targetCR)
	}

	return old, nil
}

// DeleteMany removes every entity matching where, all-or-nothing
// across every collection the cascade touches.
func DeleteMany(reg Registry, collectionName string, where query.Where, soft bool) ([]entity.Entity, error) {
	cr, err := collectionOrOpErr(reg, "deleteMany", collectionName)
	if err != nil {
		return nil, err
	}
	matches := query.Run(cr.State.Snapshot(), cr.Index, query.Options{Where: where}).Collect()

	scratch := newScratch(reg)
	removed := make([]entity.Entity, 0, len(matches))
	for _, e := range matches {
		// A cascade from an earlier entity in this batch may already
		// have removed a later one; skip it rather than double-delete.
		if _, err := get(mustStagedRuntime(scratch, collectionName), e.ID()); err != nil {
			continue
		}
		d, err := Delete(scratch, collectionName, e.ID(), soft)
		if err != nil {
			return nil, err
		}
		removed = append(removed, d)
	}
	scratch.commit()
	return removed, nil
}

func mustStagedRuntime(scratch *scratchRegistry, name string) *CollectionRuntime {
	cr, _ := scratch.Collection(name)
	return cr
}

// Upsert updates the single entity matching where, or creates one if
// none matches. More than one match is an OperationError: upsert
// requires where to identify at most one entity.
func Upsert(reg Registry, collectionName string, whereRaw map[string]any, createInput, updatePatch map[string]any) (entity.Entity, string, error) {
	cr, err := collectionOrOpErr(reg, "upsert", collectionName)
	if err != nil {
		return nil, "", err
	}
	where := query.Normalize(whereRaw)
	matches := query.Run(cr.State.Snapshot(), cr.Index, query.Options{Where: where}).Collect()

	if len(matches) > 1 {
		return nil, "", &errs.OperationError{Operation: "upsert", Reason: "where matched more than one entity"}
	}
	if len(matches) == 1 {
		updated, err := Update(reg, collectionName, matches[0].ID(), updatePatch)
		return updated, "updated", err
	}

	merged := make(map[string]any, len(createInput)+len(whereRaw))
	for k, v := range whereRaw {
		merged[k] = v
	}
	for k, v := range createInput {
		merged[k] = v
	}
	created, err := Create(reg, collectionName, merged)
	return created, "created", err
}

// scratchRegistry stages every collection a *Many call touches (the
// primary collection, plus any the relationship enforcer reaches via
// cascade/restrict/setNull) in a clone, committing all of them
// together at the end. This is what gives createMany/updateMany/
// deleteMany their all-or-nothing guarantee without routing through
// the full transaction manager.
type scratchRegistry struct {
	parent Registry
	staged map[string]*CollectionRuntime
}

func newScratch(parent Registry) *scratchRegistry {
	return &scratchRegistry{parent: parent, staged: make(map[string]*CollectionRuntime)}
}

func (s *scratchRegistry) Collection(name string) (*CollectionRuntime, bool) {
	if cr, ok := s.staged[name]; ok {
		return cr, true
	}
	live, ok := s.parent.Collection(name)
	if !ok {
		return nil, false
	}
	staged := &CollectionRuntime{
		Name:       live.Name,
		State:      collection.New(live.State.Snapshot().Clone()),
		Index:      live.Index.Clone(),
		Refs:       live.Refs,
		UniqueSets: live.UniqueSets,
		AppendOnly: live.AppendOnly,
		SoftDelete: live.SoftDelete,
		Validator:  live.Validator,
		Persist:    live.Persist,
	}
	s.staged[name] = staged
	return staged, true
}

func (s *scratchRegistry) Inverses(name string) []relate.Inverse {
	return s.parent.Inverses(name)
}

// commit copies every staged collection's final state back onto the
// parent's live CollectionRuntime in place.
func (s *scratchRegistry) commit() {
	for name, staged := range s.staged {
		live, ok := s.parent.Collection(name)
		if !ok {
			continue
		}
		live.State.ReplaceAll(staged.State.Snapshot())
		live.Index = staged.Index
	}
}
