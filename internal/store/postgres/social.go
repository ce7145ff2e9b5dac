package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

const (
	commentTable = "hub_comment"
	ratingTable  = "hub_rating"
)

// RatingsFor computes the mean rating per course for the given ids. Courses
// without ratings are absent from the result.
func (s *Store) RatingsFor(ctx context.Context, courseIDs []int64) (map[int64]model.Rating, error) {
	ratings := make(map[int64]model.Rating, len(courseIDs))
	if len(courseIDs) == 0 {
		return ratings, nil
	}

	query, args, err := builder.
		Select("courseid", "avg(rating)::float8 AS aggregate", "count(*) AS count").
		From(ratingTable).
		Where(sq.Eq{"courseid": courseIDs}).
		GroupBy("courseid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build rating query: %w", err)
	}

	var rows []struct {
		CourseID  int64   `db:"courseid"`
		Aggregate float64 `db:"aggregate"`
		Count     int64   `db:"count"`
	}
	if err := pgxscan.Select(ctx, s.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	for _, r := range rows {
		agg := r.Aggregate
		ratings[r.CourseID] = model.Rating{
			Aggregate: &agg,
			Count:     r.Count,
			ScaleID:   model.RatingScaleID,
		}
	}
	return ratings, nil
}

// CommentsFor returns the comments on a course, oldest first.
func (s *Store) CommentsFor(ctx context.Context, courseID int64) ([]model.Comment, error) {
	query, args, err := builder.
		Select("comment", "commentator", "date").
		From(commentTable).
		Where(sq.Eq{"courseid": courseID}).
		OrderBy("date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build comment query: %w", err)
	}

	var comments []model.Comment
	if err := pgxscan.Select(ctx, s.q, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// AddComment stores a comment on a course.
func (s *Store) AddComment(ctx context.Context, courseID int64, c model.Comment) error {
	date := c.Date
	if date == 0 {
		date = time.Now().Unix()
	}
	query, args, err := builder.Insert(commentTable).
		Columns("courseid", "comment", "commentator", "date").
		Values(courseID, c.Comment, c.Commentator, date).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build comment insert: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// AddRating stores a single rating value for a course.
func (s *Store) AddRating(ctx context.Context, courseID int64, rating int64) error {
	query, args, err := builder.Insert(ratingTable).
		Columns("courseid", "rating", "timecreated").
		Values(courseID, rating, time.Now().Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build rating insert: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add rating: %w", err)
	}
	return nil
}
