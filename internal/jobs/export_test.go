package jobs

import "time"

func (service *Service) SetClock(now func() time.Time) { service.now = now }

func (service *Service) EvictExpired() { service.evictExpired() }
