package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/quizhall/internal/model"
)

// questionDoc keeps the answer as JSON text so every key variant round-trips
// without BSON type conversions.
type questionDoc struct {
	ID           string   `bson:"_id"`
	Text         string   `bson:"text"`
	Type         string   `bson:"type"`
	Options      []string `bson:"options"`
	AnswerJSON   string   `bson:"answer_json"`
	Explanation  string   `bson:"explanation"`
	CategoryID   string   `bson:"category_id"`
	CategoryName string   `bson:"category_name"`
	CreatedAt    int64    `bson:"created_at"`
}

func toQuestionDoc(q model.Question) (questionDoc, error) {
	answer, err := model.MarshalAnswerKey(q.Key)
	if err != nil {
		return questionDoc{}, fmt.Errorf("encode answer: %w", err)
	}
	return questionDoc{
		ID:           q.ID,
		Text:         q.Text,
		Type:         string(q.Type()),
		Options:      nonNil(q.Options),
		AnswerJSON:   string(answer),
		Explanation:  q.Explanation,
		CategoryID:   q.CategoryID,
		CategoryName: q.CategoryName,
		CreatedAt:    toUnix(q.CreatedAt),
	}, nil
}

func (d questionDoc) model() (model.Question, error) {
	q := model.Question{
		ID:           d.ID,
		Text:         d.Text,
		Explanation:  d.Explanation,
		CategoryID:   d.CategoryID,
		CategoryName: d.CategoryName,
		CreatedAt:    fromUnix(d.CreatedAt),
	}
	if len(d.Options) > 0 {
		q.Options = d.Options
	}
	key, err := model.DecodeAnswerKey(model.QuestionType(d.Type), json.RawMessage(d.AnswerJSON), q.Options)
	if err != nil {
		return model.Question{}, fmt.Errorf("decode answer of %s: %w", d.ID, err)
	}
	q.Key = key
	return q, nil
}

func questionsFromDocs(docs []questionDoc) ([]model.Question, error) {
	var out []model.Question
	for _, d := range docs {
		q, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// CreateQuestion stores a question.
func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	doc, err := toQuestionDoc(*q)
	if err != nil {
		return err
	}
	_, err = s.questions.InsertOne(ctx, doc)
	return err
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	var doc questionDoc
	if err := s.questions.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return model.Question{}, notFound(err)
	}
	return doc.model()
}

// UpdateQuestion replaces the editable fields of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	doc, err := toQuestionDoc(q)
	if err != nil {
		return err
	}
	return matched(s.questions.UpdateOne(ctx, byID(q.ID), bson.M{"$set": bson.M{
		"text":          doc.Text,
		"type":          doc.Type,
		"options":       doc.Options,
		"answer_json":   doc.AnswerJSON,
		"explanation":   doc.Explanation,
		"category_id":   doc.CategoryID,
		"category_name": doc.CategoryName,
	}}))
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	return deleted(s.questions.DeleteOne(ctx, byID(id)))
}

// ListQuestions returns all questions in creation order.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	var docs []questionDoc
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.questions, bson.M{}, &docs, opts); err != nil {
		return nil, err
	}
	return questionsFromDocs(docs)
}

type categoryDoc struct {
	ID          string `bson:"_id"`
	Name        string `bson:"name"`
	Description string `bson:"description"`
	CreatedAt   int64  `bson:"created_at"`
}

func (d categoryDoc) model() model.Category {
	return model.Category{ID: d.ID, Name: d.Name, Description: d.Description, CreatedAt: fromUnix(d.CreatedAt)}
}

// CreateCategory stores a category.
func (s *Store) CreateCategory(ctx context.Context, c *model.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.categories.InsertOne(ctx, categoryDoc{
		ID: c.ID, Name: c.Name, Description: c.Description, CreatedAt: toUnix(c.CreatedAt),
	})
	return err
}

// GetCategory returns a category by ID.
func (s *Store) GetCategory(ctx context.Context, id string) (model.Category, error) {
	var doc categoryDoc
	if err := s.categories.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return model.Category{}, notFound(err)
	}
	return doc.model(), nil
}

// GetCategoryByName returns a category by its unique name.
func (s *Store) GetCategoryByName(ctx context.Context, name string) (model.Category, error) {
	var doc categoryDoc
	if err := s.categories.FindOne(ctx, bson.M{"name": name}).Decode(&doc); err != nil {
		return model.Category{}, notFound(err)
	}
	return doc.model(), nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]model.Category, error) {
	var docs []categoryDoc
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if err := findAll(ctx, s.categories, bson.M{}, &docs, opts); err != nil {
		return nil, err
	}
	var out []model.Category
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// DeleteCategory removes a category and unassigns its questions.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if err := deleted(s.categories.DeleteOne(ctx, byID(id))); err != nil {
		return err
	}
	_, err := s.questions.UpdateMany(ctx, bson.M{"category_id": id}, bson.M{"$set": bson.M{
		"category_id":   "",
		"category_name": model.UnassignedCategory,
	}})
	if err != nil {
		return fmt.Errorf("unassign questions: %w", err)
	}
	return nil
}

type examDoc struct {
	ID          string   `bson:"_id"`
	Title       string   `bson:"title"`
	Description string   `bson:"description"`
	QuestionIDs []string `bson:"question_ids"`
	RandomCount int      `bson:"random_count"`
	CreatedAt   int64    `bson:"created_at"`
}

func (d examDoc) model() model.Exam {
	e := model.Exam{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		RandomCount: d.RandomCount,
		CreatedAt:   fromUnix(d.CreatedAt),
	}
	if len(d.QuestionIDs) > 0 {
		e.QuestionIDs = d.QuestionIDs
	}
	return e
}

// CreateExam stores an exam definition.
func (s *Store) CreateExam(ctx context.Context, e *model.Exam) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.exams.InsertOne(ctx, examDoc{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		QuestionIDs: nonNil(e.QuestionIDs),
		RandomCount: e.RandomCount,
		CreatedAt:   toUnix(e.CreatedAt),
	})
	return err
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	var doc examDoc
	if err := s.exams.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return model.Exam{}, notFound(err)
	}
	return doc.model(), nil
}

// UpdateExam replaces an exam definition.
func (s *Store) UpdateExam(ctx context.Context, e model.Exam) error {
	return matched(s.exams.UpdateOne(ctx, byID(e.ID), bson.M{"$set": bson.M{
		"title":        e.Title,
		"description":  e.Description,
		"question_ids": nonNil(e.QuestionIDs),
		"random_count": e.RandomCount,
	}}))
}

// DeleteExam removes an exam.
func (s *Store) DeleteExam(ctx context.Context, id string) error {
	return deleted(s.exams.DeleteOne(ctx, byID(id)))
}

// ListExams returns all exams, oldest first.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	var docs []examDoc
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.exams, bson.M{}, &docs, opts); err != nil {
		return nil, err
	}
	var out []model.Exam
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

type sittingDoc struct {
	ID        string        `bson:"_id"`
	UserID    string        `bson:"user_id"`
	ExamID    string        `bson:"exam_id"`
	Questions []questionDoc `bson:"questions"`
	StartedAt int64         `bson:"started_at"`
}

// CreateSitting stores a started exam with its question snapshot.
func (s *Store) CreateSitting(ctx context.Context, st *model.Sitting) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	doc := sittingDoc{ID: st.ID, UserID: st.UserID, ExamID: st.ExamID, StartedAt: toUnix(st.StartedAt)}
	for _, q := range st.Questions {
		qd, err := toQuestionDoc(q)
		if err != nil {
			return err
		}
		doc.Questions = append(doc.Questions, qd)
	}
	_, err := s.sittings.InsertOne(ctx, doc)
	return err
}

// GetSitting returns an open sitting by ID.
func (s *Store) GetSitting(ctx context.Context, id string) (model.Sitting, error) {
	var doc sittingDoc
	if err := s.sittings.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return model.Sitting{}, notFound(err)
	}
	questions, err := questionsFromDocs(doc.Questions)
	if err != nil {
		return model.Sitting{}, err
	}
	return model.Sitting{
		ID:        doc.ID,
		UserID:    doc.UserID,
		ExamID:    doc.ExamID,
		Questions: questions,
		StartedAt: fromUnix(doc.StartedAt),
	}, nil
}

// ConsumeSitting deletes a sitting; only one caller observes success.
func (s *Store) ConsumeSitting(ctx context.Context, id string) error {
	return deleted(s.sittings.DeleteOne(ctx, byID(id)))
}

// attemptDoc keeps answers as JSON text: decoded BSON arrays would not be
// plain []any values.
type attemptDoc struct {
	ID          string   `bson:"_id"`
	UserID      string   `bson:"user_id"`
	ExamID      string   `bson:"exam_id"`
	QuestionIDs []string `bson:"question_ids"`
	AnswersJSON string   `bson:"answers_json"`
	Score       int      `bson:"score"`
	CreatedAt   int64    `bson:"created_at"`
}

func (d attemptDoc) model() (model.Attempt, error) {
	a := model.Attempt{
		ID:        d.ID,
		UserID:    d.UserID,
		ExamID:    d.ExamID,
		Score:     d.Score,
		Timestamp: fromUnix(d.CreatedAt),
	}
	if len(d.QuestionIDs) > 0 {
		a.QuestionIDs = d.QuestionIDs
	}
	if err := json.Unmarshal([]byte(d.AnswersJSON), &a.Answers); err != nil {
		return model.Attempt{}, fmt.Errorf("decode answers of %s: %w", d.ID, err)
	}
	return a, nil
}

// CreateAttempt stores a completed attempt.
func (s *Store) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	answers := a.Answers
	if answers == nil {
		answers = []any{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = s.attempts.InsertOne(ctx, attemptDoc{
		ID:          a.ID,
		UserID:      a.UserID,
		ExamID:      a.ExamID,
		QuestionIDs: nonNil(a.QuestionIDs),
		AnswersJSON: string(data),
		Score:       a.Score,
		CreatedAt:   toUnix(a.Timestamp),
	})
	return err
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id string) (model.Attempt, error) {
	var doc attemptDoc
	if err := s.attempts.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return model.Attempt{}, notFound(err)
	}
	return doc.model()
}

// ListAttempts returns all attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context) ([]model.Attempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return s.findAttempts(ctx, opts)
}

// TopAttempts returns the best attempts by score, earlier first on ties.
func (s *Store) TopAttempts(ctx context.Context, limit int) ([]model.Attempt, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return s.findAttempts(ctx, opts)
}

func (s *Store) findAttempts(ctx context.Context, opts *options.FindOptions) ([]model.Attempt, error) {
	var docs []attemptDoc
	if err := findAll(ctx, s.attempts, bson.M{}, &docs, opts); err != nil {
		return nil, err
	}
	var out []model.Attempt
	for _, d := range docs {
		a, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
