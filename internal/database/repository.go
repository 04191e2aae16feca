package database

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	GetTeamsByAccountId(accountId int) ([]Team, error)
	GetTeamMembers(teamId int) ([]Account, error)
	IsTeamMember(accountId, teamId int) (bool, error)
	GetTeammates(accountId int) ([]int, error)
	GetAcceptedFriends(accountId int) ([]Account, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(teamId, beforeSeq, limit int) ([]Message, error)
}
