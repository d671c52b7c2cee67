package fakeuserrepo_test

import (
	"testing"

	"github.com/Lipoic/Lipoic-Server/users"
	fakeuserrepo "github.com/Lipoic/Lipoic-Server/users/repofake"
	"github.com/Lipoic/Lipoic-Server/users/userstest"
)

func TestFakeUserRepo(t *testing.T) {
	userstest.RunRepoContract(t, func(t *testing.T) users.Repo {
		return fakeuserrepo.NewFakeUserRepo()
	})
}
