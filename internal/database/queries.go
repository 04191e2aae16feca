package database

import (
	"fmt"
	"time"
)

const (
	createAccountQuery = "INSERT INTO accounts (username, email, password_hash, created_at) " +
		"VALUES ($1, $2, $3, $4) RETURNING id, username, email, created_at"
	getAccountByIdQuery = "SELECT id, username, email, COALESCE(avatar_url, ''), created_at, updated_at " +
		"FROM accounts WHERE id = $1 LIMIT 1"
	getAccountByEmailQuery = "SELECT id, username, email, COALESCE(avatar_url, ''), password_hash, created_at, updated_at " +
		"FROM accounts WHERE email = $1 LIMIT 1"
	getTeamsByAccountQuery = "SELECT t.id, t.name, t.description, t.seq_id, t.created_at, t.updated_at " +
		"FROM teams t JOIN team_members tm ON tm.team_id = t.id " +
		"WHERE tm.account_id = $1 ORDER BY t.name"
	getTeamMembersQuery = "SELECT a.id, a.username, COALESCE(a.avatar_url, '') " +
		"FROM accounts a JOIN team_members tm ON tm.account_id = a.id " +
		"WHERE tm.team_id = $1"
	isTeamMemberQuery = "SELECT EXISTS (SELECT 1 FROM team_members " +
		"WHERE account_id = $1 AND team_id = $2)"
	getTeammatesQuery = "SELECT DISTINCT tm2.account_id FROM team_members tm1 " +
		"JOIN team_members tm2 ON tm1.team_id = tm2.team_id " +
		"WHERE tm1.account_id = $1 AND tm2.account_id <> $1"
	getAcceptedFriendsQuery = "SELECT a.id, a.username, COALESCE(a.avatar_url, '') " +
		"FROM accounts a JOIN friendships f " +
		"ON a.id = CASE WHEN f.requester_id = $1 THEN f.addressee_id ELSE f.requester_id END " +
		"WHERE f.status = 'accepted' AND (f.requester_id = $1 OR f.addressee_id = $1)"
	// The message insert bumps the team's sequence counter and stamps the new
	// message with it in one statement, making persistence order the canonical
	// order for the team.
	createMessageQuery = "WITH next AS (" +
		"UPDATE teams SET seq_id = seq_id + 1, updated_at = $4 WHERE id = $1 RETURNING seq_id" +
		") INSERT INTO messages (team_id, account_id, seq_id, content, created_at) " +
		"SELECT $1, $2, next.seq_id, $3, $4 FROM next " +
		"RETURNING id, seq_id, created_at"
	getMessagesQuery = "SELECT id, seq_id, team_id, account_id, content, created_at " +
		"FROM messages WHERE team_id = $1 AND ($2 = 0 OR seq_id < $2) " +
		"ORDER BY seq_id DESC LIMIT $3"
)

const defaultMessagePageSize = 50

func (db *PgRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	row := db.conn.QueryRow(
		createAccountQuery,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(getAccountByIdQuery, accountId)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarUrl,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(getAccountByEmailQuery, email)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.AvatarUrl,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgRepository) GetTeamsByAccountId(accountId int) ([]Team, error) {
	rows, err := db.conn.Query(getTeamsByAccountQuery, accountId)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.Id, &t.Name, &t.Description, &t.SeqId, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}

	return teams, rows.Err()
}

func (db *PgRepository) GetTeamMembers(teamId int) ([]Account, error) {
	rows, err := db.conn.Query(getTeamMembersQuery, teamId)
	if err != nil {
		return nil, fmt.Errorf("query team members: %w", err)
	}
	defer rows.Close()

	var members []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Username, &a.AvatarUrl); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, a)
	}

	return members, rows.Err()
}

func (db *PgRepository) IsTeamMember(accountId, teamId int) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(isTeamMemberQuery, accountId, teamId).Scan(&exists)
	return exists, err
}

func (db *PgRepository) GetTeammates(accountId int) ([]int, error) {
	rows, err := db.conn.Query(getTeammatesQuery, accountId)
	if err != nil {
		return nil, fmt.Errorf("query teammates: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan teammate: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgRepository) GetAcceptedFriends(accountId int) ([]Account, error) {
	rows, err := db.conn.Query(getAcceptedFriendsQuery, accountId)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Id, &a.Username, &a.AvatarUrl); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, a)
	}

	return friends, rows.Err()
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	msg := Message{
		TeamId:    params.TeamId,
		AccountId: params.AccountId,
		Content:   params.Content,
	}

	err := db.conn.QueryRow(
		createMessageQuery,
		params.TeamId,
		params.AccountId,
		params.Content,
		time.Now().UTC(),
	).Scan(&msg.Id, &msg.SeqId, &msg.CreatedAt)

	return msg, err
}

func (db *PgRepository) GetMessages(teamId, beforeSeq, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultMessagePageSize
	}

	rows, err := db.conn.Query(getMessagesQuery, teamId, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.SeqId, &m.TeamId, &m.AccountId, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
