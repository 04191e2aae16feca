package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockRepository) GetTeamsByAccountId(accountId int) ([]Team, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Team), args.Error(1)
}
func (m *MockRepository) GetTeamMembers(teamId int) ([]Account, error) {
	args := m.Called(teamId)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockRepository) IsTeamMember(accountId, teamId int) (bool, error) {
	args := m.Called(accountId, teamId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetTeammates(accountId int) ([]int, error) {
	args := m.Called(accountId)
	return args.Get(0).([]int), args.Error(1)
}
func (m *MockRepository) GetAcceptedFriends(accountId int) ([]Account, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Account), args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(teamId, beforeSeq, limit int) ([]Message, error) {
	args := m.Called(teamId, beforeSeq, limit)
	return args.Get(0).([]Message), args.Error(1)
}
