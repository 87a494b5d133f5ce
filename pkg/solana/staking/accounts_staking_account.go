package staking

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	StakingAccountSize = (8 + // discriminator
		32 + // owner
		8 + // staked_amount
		8 + // pending_rewards
		8 + // total_claimed
		1) // bump
)

var StakingAccountDiscriminator = []byte{0x34, 0xb2, 0xfb, 0x9d, 0xb4, 0xba, 0x62, 0xea}

type StakingAccount struct {
	Owner          ed25519.PublicKey
	StakedAmount   uint64
	PendingRewards uint64
	TotalClaimed   uint64
	Bump           uint8
}

func (obj *StakingAccount) Marshal() []byte {
	data := make([]byte, StakingAccountSize)

	var offset int

	putDiscriminator(data, StakingAccountDiscriminator, &offset)
	putKey(data, obj.Owner, &offset)
	putUint64(data, obj.StakedAmount, &offset)
	putUint64(data, obj.PendingRewards, &offset)
	putUint64(data, obj.TotalClaimed, &offset)
	putUint8(data, obj.Bump, &offset)

	return data
}

func (obj *StakingAccount) Unmarshal(data []byte) error {
	if len(data) < StakingAccountSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, StakingAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	getKey(data, &obj.Owner, &offset)
	getUint64(data, &obj.StakedAmount, &offset)
	getUint64(data, &obj.PendingRewards, &offset)
	getUint64(data, &obj.TotalClaimed, &offset)
	getUint8(data, &obj.Bump, &offset)

	return nil
}

func (obj *StakingAccount) String() string {
	return fmt.Sprintf(
		"StakingAccount{owner=%s,staked_amount=%d,pending_rewards=%d,total_claimed=%d,bump=%d}",
		base58.Encode(obj.Owner),
		obj.StakedAmount,
		obj.PendingRewards,
		obj.TotalClaimed,
		obj.Bump,
	)
}
