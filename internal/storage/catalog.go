package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"worktracker/pkg/models"
)

// EnsureUser 按用户名查找用户，不存在时创建
func (m *Manager) EnsureUser(username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, fmt.Errorf("username is required")
	}
	if _, err := m.db.Exec(
		`INSERT OR IGNORE INTO users (username, created_at) VALUES (?, ?)`,
		username, toMillis(time.Now()),
	); err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return m.UserByName(username)
}

// UserByName 按用户名查找
func (m *Manager) UserByName(username string) (models.User, error) {
	var u models.User
	err := m.db.QueryRow(`SELECT id, username FROM users WHERE username = ?`, username).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// Users 全部用户，按用户名排序
func (m *Manager) Users() ([]models.User, error) {
	rows, err := m.db.Query(`SELECT id, username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateClient 创建客户
func (m *Manager) CreateClient(name string) (models.Client, error) {
	result, err := m.db.Exec(`INSERT INTO clients (name) VALUES (?)`, name)
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to insert client: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.Client{}, fmt.Errorf("failed to get insert id: %w", err)
	}
	return models.Client{ID: id, Name: name}, nil
}

// Clients 全部客户
func (m *Manager) Clients() ([]models.Client, error) {
	rows, err := m.db.Query(`SELECT id, name FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// CreateProject 为客户创建项目
func (m *Manager) CreateProject(clientID int64, name string) (models.Project, error) {
	result, err := m.db.Exec(`INSERT INTO projects (client_id, name) VALUES (?, ?)`, clientID, name)
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return models.Project{}, fmt.Errorf("failed to get insert id: %w", err)
	}
	return models.Project{ID: id, ClientID: clientID, Name: name}, nil
}

// ProjectsByClient 某客户的项目
func (m *Manager) ProjectsByClient(clientID int64) ([]models.Project, error) {
	rows, err := m.db.Query(`SELECT id, client_id, name FROM projects WHERE client_id = ? ORDER BY name`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectBelongsTo 项目是否属于该客户
func (m *Manager) ProjectBelongsTo(projectID, clientID int64) (bool, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM projects WHERE id = ? AND client_id = ?`, projectID, clientID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query project: %w", err)
	}
	return count > 0, nil
}
