package registry

import (
	"context"
	"database/sql"

	"github.com/sentrywatch/watchdog/internal/classify"
)

// RecordDetection UPSERTs on (ref_type, ref_id, storage_location): it
// inserts a new row or refreshes last_verified_at and current_class on
// an existing one, so repeated detections of the same item at the same
// location never create duplicate rows.
func (s *Store) RecordDetection(ctx context.Context, in DetectionInput) (InventoryRecord, error) {
	if in.RefLabel == "" || in.StorageLocation == "" {
		return InventoryRecord{}, newErr(KindInvalidInput, "ref_label and storage_location are required", nil)
	}
	now := nowISO()
	_, err := s.db.ExecContext(ctx, `INSERT INTO inventory
		(ref_type, ref_id, ref_label, storage_location, storage_type, data_form, detector_name,
		 current_class, first_detected_at, last_verified_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(ref_type, ref_id, storage_location) DO UPDATE SET
			last_verified_at = excluded.last_verified_at,
			current_class = excluded.current_class,
			active = 1,
			deactivated_at = NULL,
			deactivated_by = NULL`,
		in.RefType, in.RefID, in.RefLabel, in.StorageLocation, in.StorageType, in.DataForm,
		in.DetectorName, in.CurrentClass.Rank(), now, now)
	if err != nil {
		return InventoryRecord{}, classifyWriteErr(err, "record detection")
	}

	row := s.db.QueryRowContext(ctx, inventorySelect+` WHERE ref_type = ? AND ref_id = ? AND storage_location = ?`,
		in.RefType, in.RefID, in.StorageLocation)
	return scanInventory(row)
}

// DeactivateInventory sets active false and stamps deactivated_at/by.
func (s *Store) DeactivateInventory(ctx context.Context, id int64, actor string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE inventory SET active = 0, deactivated_at = ?, deactivated_by = ?
		WHERE id = ?`, nowISO(), actor, id)
	if err != nil {
		return newErr(KindStorageUnavailable, "deactivate inventory", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearInventoryByLocation bulk-deactivates all active rows at a storage
// location and returns the affected count.
func (s *Store) ClearInventoryByLocation(ctx context.Context, location, actor string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE inventory SET active = 0, deactivated_at = ?, deactivated_by = ?
		WHERE storage_location = ? AND active = 1`, nowISO(), actor, location)
	if err != nil {
		return 0, newErr(KindStorageUnavailable, "clear inventory by location", err)
	}
	return res.RowsAffected()
}

// GetPostureInput returns counts of active inventory per strict-tier
// classification, plus the total active count, via the v_posture_input
// view.
func (s *Store) GetPostureInput(ctx context.Context) (PostureInput, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT classification, active_count FROM v_posture_input`)
	if err != nil {
		return PostureInput{}, newErr(KindStorageUnavailable, "posture input query", err)
	}
	defer rows.Close()

	out := PostureInput{CountsByClass: make(map[classify.Classification]int)}
	for rows.Next() {
		var cls, count int
		if err := rows.Scan(&cls, &count); err != nil {
			return PostureInput{}, newErr(KindStorageUnavailable, "scan posture input", err)
		}
		out.CountsByClass[classify.Classification(cls)] = count
		out.TotalActive += count
	}
	return out, nil
}

const inventorySelect = `SELECT id, ref_type, ref_id, ref_label, storage_location, storage_type, data_form,
	detector_name, current_class, first_detected_at, last_verified_at, active, deactivated_at, deactivated_by
	FROM inventory`

func scanInventory(r rowScanner) (InventoryRecord, error) {
	var inv InventoryRecord
	var active, cls int
	var refType, storageType, dataForm, firstDet, lastVer string
	var deactAt sql.NullString
	if err := r.Scan(&inv.ID, &refType, &inv.RefID, &inv.RefLabel, &inv.StorageLocation, &storageType,
		&dataForm, &inv.DetectorName, &cls, &firstDet, &lastVer, &active,
		&deactAt, &inv.DeactivatedBy); err != nil {
		if err == sql.ErrNoRows {
			return InventoryRecord{}, ErrNotFound
		}
		return InventoryRecord{}, newErr(KindStorageUnavailable, "scan inventory", err)
	}
	inv.RefType = RefType(refType)
	inv.StorageType = StorageType(storageType)
	inv.DataForm = DataForm(dataForm)
	inv.CurrentClass = classify.Classification(cls)
	inv.Active = active != 0
	inv.FirstDetectedAt = parseISO(firstDet)
	inv.LastVerifiedAt = parseISO(lastVer)
	if deactAt.Valid {
		t := parseISO(deactAt.String)
		inv.DeactivatedAt = &t
	}
	return inv, nil
}
