package database

import "time"

type Account struct {
	Id           int
	Username     string
	EmailAddress string
	AvatarUrl    string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Team struct {
	Id          int
	Name        string
	Description string
	SeqId       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Message struct {
	Id        int
	SeqId     int
	TeamId    int
	AccountId int
	Content   string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateMessageParams struct {
	TeamId    int
	AccountId int
	Content   string
}
