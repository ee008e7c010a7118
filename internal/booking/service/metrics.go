package service

import (
	"time"

	"minister/internal/booking/models"
)

func (s *Service) observeBook(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveBook(start)
	}
}

func (s *Service) observeMigrate(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveMigrate(start)
	}
}

func (s *Service) incrementBooking(category models.Category, kind string) {
	if s.metrics != nil {
		s.metrics.IncrementBooking(category.String(), kind)
	}
}

func (s *Service) incrementConflict(category models.Category) {
	if s.metrics != nil {
		s.metrics.IncrementConflict(category.String())
	}
}

func (s *Service) incrementCancellation(category models.Category) {
	if s.metrics != nil {
		s.metrics.IncrementCancellation(category.String())
	}
}

func (s *Service) addCleared(category models.Category, n int) {
	if s.metrics != nil {
		s.metrics.AddCleared(category.String(), n)
	}
}

func (s *Service) addMigrated(n int) {
	if s.metrics != nil {
		s.metrics.AddMigrated(n)
	}
}

func (s *Service) incrementMigrationRejected() {
	if s.metrics != nil {
		s.metrics.IncrementMigrationRejected()
	}
}
