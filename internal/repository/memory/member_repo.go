package memory

import (
	"booking/internal/domain/entities"
	"booking/internal/repository"
)

type MemberRepository struct {
	*Registry[entities.Member]
}

var _ repository.MemberRepository = (*MemberRepository)(nil)

func NewMemberRepository() *MemberRepository {
	return &MemberRepository{Registry: NewRegistry[entities.Member]("member")}
}
