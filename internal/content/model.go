package content

import "context"

type Exam struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Difficulty  string `json:"difficulty"`
	IsActive    bool   `json:"isActive"`
}

type Question struct {
	ID           int64   `json:"id"`
	ExamID       int64   `json:"examId"`
	Content      string  `json:"content"`
	QuestionType string  `json:"questionType"`
	OrderIndex   int     `json:"orderIndex"`
	Points       float64 `json:"points"`
}

type AnswerOption struct {
	ID          int64  `json:"id"`
	QuestionID  int64  `json:"questionId"`
	Content     string `json:"content"`
	IsCorrect   bool   `json:"isCorrect"`
	OptionLabel string `json:"optionLabel"`
}

// CRUDService is the backend contract for one entity type. ListByParent is
// scoped to the owning record (exam for questions, question for options);
// services for root entities return every record from it.
type CRUDService[T any] interface {
	List(ctx context.Context) ([]T, error)
	ListByParent(ctx context.Context, parentID int64) ([]T, error)
	Create(ctx context.Context, payload T) (*T, error)
	Update(ctx context.Context, id int64, payload T) (*T, error)
	Delete(ctx context.Context, id int64) error
}

type ExamService = CRUDService[Exam]
type QuestionService = CRUDService[Question]
type AnswerOptionService = CRUDService[AnswerOption]
