package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ai-image-detector/internal/model"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

func (r *DetectionRepository) Create(detection *model.Detection) error {
	if err := r.db.Create(detection).Error; err != nil {
		return fmt.Errorf("create detection failed: %w", err)
	}
	return nil
}

// Record stores the detection synchronously; used when no broker is configured.
func (r *DetectionRepository) Record(ctx context.Context, detection model.Detection) error {
	if err := r.db.WithContext(ctx).Create(&detection).Error; err != nil {
		return fmt.Errorf("record detection failed: %w", err)
	}
	return nil
}

// ExistsByDetectionID lets the worker drop redelivered messages.
func (r *DetectionRepository) ExistsByDetectionID(detectionID string) (bool, error) {
	var count int64
	if err := r.db.Model(&model.Detection{}).Where("detection_id = ?", detectionID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count detection failed: %w", err)
	}
	return count > 0, nil
}

func (r *DetectionRepository) GetByDetectionID(detectionID string) (*model.Detection, error) {
	var detection model.Detection
	if err := r.db.Where("detection_id = ?", detectionID).First(&detection).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get detection failed: %w", err)
	}
	return &detection, nil
}

func (r *DetectionRepository) ListRecent(limit int, label string) ([]model.Detection, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := r.db.Order("created_at DESC").Order("id DESC").Limit(limit)
	if label != "" {
		query = query.Where("label = ?", label)
	}
	var detections []model.Detection
	if err := query.Find(&detections).Error; err != nil {
		return nil, fmt.Errorf("list detections failed: %w", err)
	}
	return detections, nil
}

// CountByLabel returns how many detections ended with each label.
func (r *DetectionRepository) CountByLabel() (map[string]int64, error) {
	var rows []struct {
		Label string
		Total int64
	}
	if err := r.db.Model(&model.Detection{}).Select("label, count(*) as total").Group("label").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count detections failed: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Total
	}
	return counts, nil
}
