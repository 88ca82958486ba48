package repository

import (
	"database/sql"
	"fmt"

	"TaskHub/model"
)

// TaskRepository 任务数据访问
// 任务表不走 GORM，沿用裸 SQL。
type TaskRepository struct {
	DB *sql.DB
}

// NewTaskRepository 创建任务仓库
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{DB: db}
}

// List 按创建时间倒序分页查询任务，返回当前页和总条数
func (r *TaskRepository) List(page, pageSize int) ([]model.Task, int, error) {
	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.DB.Query(
		`SELECT id, title, description, status, created_at, updated_at
		 FROM tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &desc, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		if desc.Valid {
			t.Description = desc.String
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// GetByID 按ID查询任务，未命中返回 (nil, nil)
func (r *TaskRepository) GetByID(id int64) (*model.Task, error) {
	row := r.DB.QueryRow(
		`SELECT id, title, description, status, created_at, updated_at FROM tasks WHERE id = ?`, id)

	var t model.Task
	var desc sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &desc, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	if desc.Valid {
		t.Description = desc.String
	}
	return &t, nil
}

// Create 创建任务
func (r *TaskRepository) Create(task *model.Task) error {
	res, err := r.DB.Exec(
		`INSERT INTO tasks (title, description, status) VALUES (?, ?, ?)`,
		task.Title, task.Description, task.Status,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get task insert id: %w", err)
	}
	task.ID = id
	return nil
}

// Update 更新任务
func (r *TaskRepository) Update(task *model.Task) error {
	if _, err := r.DB.Exec(
		`UPDATE tasks SET title = ?, description = ?, status = ? WHERE id = ?`,
		task.Title, task.Description, task.Status, task.ID,
	); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Delete 删除任务
func (r *TaskRepository) Delete(id int64) error {
	if _, err := r.DB.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
