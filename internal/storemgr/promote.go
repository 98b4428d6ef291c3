package storemgr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/types"
)

// PromoteFact copies a project fact (and its entity and receipts) into the
// global store, returning the new global fact id, or "" if the project
// fact does not exist. The operation spans two database files and is not
// atomic across them, but each file's own writes are transactional; both
// the entity upsert (slug-unique) and the fact insert (signature-checked
// against existing global facts first) are idempotent, so retrying a
// partially-failed promotion converges rather than duplicating data.
func (m *Manager) PromoteFact(ctx context.Context, projectFactID string) (string, error) {
	project, err := m.EnsureProject(ctx)
	if err != nil {
		return "", err
	}
	global, err := m.EnsureGlobal(ctx)
	if err != nil {
		return "", err
	}

	pf, err := project.GetFact(ctx, projectFactID)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("storemgr: fetch project fact: %w", err)
	}

	subject, err := project.GetEntity(ctx, pf.SubjectID)
	if err != nil {
		return "", fmt.Errorf("storemgr: fetch project subject entity: %w", err)
	}

	var objectName string
	if pf.Object.IsEntity() {
		objEntity, err := project.GetEntity(ctx, *pf.Object.EntityID)
		if err != nil {
			return "", fmt.Errorf("storemgr: fetch project object entity: %w", err)
		}
		objectName = objEntity.CanonicalName
	} else if pf.Object.Literal != nil {
		objectName = *pf.Object.Literal
	}

	// Idempotency check: if a global fact with the same signature already
	// exists, this promotion already happened (or a concurrent one did);
	// return its id unchanged rather than inserting a duplicate.
	if existingID, err := findGlobalFactBySignature(ctx, global, subject.CanonicalName, pf.Predicate, objectName); err != nil {
		return "", err
	} else if existingID != "" {
		return existingID, nil
	}

	tx, err := global.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("storemgr: begin global tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	globalSubjectID, _, err := global.FindOrCreateEntity(ctx, tx, subject.Type, subject.CanonicalName)
	if err != nil {
		return "", fmt.Errorf("storemgr: upsert global subject entity: %w", err)
	}

	globalObject := pf.Object
	if pf.Object.IsEntity() {
		objEntity, err := project.GetEntity(ctx, *pf.Object.EntityID)
		if err != nil {
			return "", fmt.Errorf("storemgr: fetch project object entity: %w", err)
		}
		globalObjectID, _, err := global.FindOrCreateEntity(ctx, tx, objEntity.Type, objEntity.CanonicalName)
		if err != nil {
			return "", fmt.Errorf("storemgr: upsert global object entity: %w", err)
		}
		globalObject = types.ObjectRef{EntityID: &globalObjectID}
	}

	globalFact := *pf
	globalFact.ID = ""
	globalFact.SubjectID = globalSubjectID
	globalFact.Object = globalObject
	globalFact.Scope = types.ScopeGlobal
	globalFact.ProjectPath = ""

	globalFactID, err := global.InsertFact(ctx, tx, globalFact)
	if err != nil {
		return "", fmt.Errorf("storemgr: insert global fact: %w", err)
	}

	receipts, err := project.ProvenanceForFact(ctx, projectFactID)
	if err != nil {
		return "", fmt.Errorf("storemgr: fetch project receipts: %w", err)
	}
	for _, r := range receipts {
		r.ID = ""
		r.FactID = globalFactID
		if _, err := global.InsertProvenance(ctx, tx, r); err != nil {
			return "", fmt.Errorf("storemgr: copy receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("storemgr: commit global tx: %w", err)
	}
	committed = true
	return globalFactID, nil
}

// findGlobalFactBySignature walks active facts on the subject's slot to
// see whether this exact (subject, predicate, object) signature was
// already promoted. A subject that doesn't exist yet in the global store
// can never have a prior promotion, so the check short-circuits on a
// missing subject rather than forcing an entity creation here.
func findGlobalFactBySignature(ctx context.Context, global storage.Store, subjectName, predicate, objectName string) (string, error) {
	entity, err := findEntityByName(ctx, global, subjectName)
	if err != nil {
		return "", err
	}
	if entity == nil {
		return "", nil
	}
	active, err := global.ActiveFactsForSlot(ctx, nil, entity.ID, predicate)
	if err != nil {
		return "", fmt.Errorf("storemgr: signature check: %w", err)
	}
	want := strings.ToLower(strings.TrimSpace(objectName))
	for _, f := range active {
		var got string
		if f.Object.IsEntity() {
			objEntity, err := global.GetEntity(ctx, *f.Object.EntityID)
			if err != nil {
				continue
			}
			got = strings.ToLower(strings.TrimSpace(objEntity.CanonicalName))
		} else if f.Object.Literal != nil {
			got = strings.ToLower(strings.TrimSpace(*f.Object.Literal))
		}
		if got == want {
			return f.ID, nil
		}
	}
	return "", nil
}

// findEntityByName looks an entity up across every known entity type by
// slug, since the caller only has a canonical name, not a type. Returns
// nil (not an error) when no entity of any type has that name.
func findEntityByName(ctx context.Context, store storage.Store, name string) (*types.Entity, error) {
	for _, t := range []types.EntityType{
		types.EntityDatabase, types.EntityFramework, types.EntityLanguage, types.EntityPlatform,
		types.EntityRepo, types.EntityModule, types.EntityPerson, types.EntityService, types.EntityOther,
	} {
		e, err := store.GetEntityBySlug(ctx, sqlite.Slug(t, name))
		if err == nil {
			return e, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
