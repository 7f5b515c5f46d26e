package server

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const cleanupInterval = time.Hour

// RunCleanup periodically prunes stored uploads and stale terminal jobs.
// Uploads older than the retention window go first, then the oldest beyond
// the count cap. It blocks until ctx is canceled.
func (s *Server) RunCleanup(ctx context.Context) {
	if s.cfg.CleanupUploadDays <= 0 && s.cfg.CleanupUploadMaxCount <= 0 && s.cfg.CleanupJobDays <= 0 {
		return
	}
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		s.cleanupUploads()
		s.cleanupJobs(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) cleanupJobs(ctx context.Context) {
	if s.cfg.CleanupJobDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.cfg.CleanupJobDays)
	if _, err := s.jobs.DeleteTerminalBefore(ctx, cutoff); err != nil {
		s.logger.Warn("cleanup.jobs_failed", "error", err)
	}
}

type uploadEntry struct {
	path    string
	modTime time.Time
}

func (s *Server) cleanupUploads() {
	entries, err := os.ReadDir(s.cfg.UploadsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cleanup.read_failed", "dir", s.cfg.UploadsDir, "error", err)
		}
		return
	}

	var uploads []uploadEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		uploads = append(uploads, uploadEntry{
			path:    filepath.Join(s.cfg.UploadsDir, e.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(uploads, func(i, j int) bool {
		return uploads[i].modTime.Before(uploads[j].modTime)
	})

	removed := 0
	if s.cfg.CleanupUploadDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.CleanupUploadDays)
		kept := uploads[:0]
		for _, u := range uploads {
			if u.modTime.Before(cutoff) {
				if err := os.Remove(u.path); err == nil {
					removed++
					continue
				}
			}
			kept = append(kept, u)
		}
		uploads = kept
	}

	if max := s.cfg.CleanupUploadMaxCount; max > 0 && len(uploads) > max {
		for _, u := range uploads[:len(uploads)-max] {
			if err := os.Remove(u.path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.logger.Info("cleanup.uploads_removed", "count", removed)
	}
}
