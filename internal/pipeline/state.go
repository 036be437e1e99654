package pipeline

import (
	"errors"

	"gridnews/internal/diag"
	"gridnews/pkg/contract"
)

// State: 编排器状态。终态为 Succeeded、NoData、Failed、InvalidInput。
type State string

const (
	Idle          State = "idle"
	Stage1Running State = "stage1_running"
	Stage2Running State = "stage2_running"
	Stage3Running State = "stage3_running"
	Succeeded     State = "succeeded"
	NoData        State = "no_data"
	Failed        State = "failed"
	InvalidInput  State = "invalid_input"
)

// Terminal 是否为终态。
func (s State) Terminal() bool {
	switch s {
	case Succeeded, NoData, Failed, InvalidInput:
		return true
	}
	return false
}

// ExitCode 终态到进程退出码；非终态视为失败。
func (s State) ExitCode() int {
	switch s {
	case Succeeded:
		return diag.ExitOK
	case NoData:
		return diag.ExitNoData
	case InvalidInput:
		return diag.ExitInvalid
	default:
		return diag.ExitFailed
	}
}

// Signal: 阶段（或入参校验）报告给编排器的结果。
type Signal string

const (
	SigOk         Signal = "ok"
	SigNoData     Signal = "no_data"
	SigStageError Signal = "stage_error"
	SigInputError Signal = "input_error"
)

// SignalOf 将错误映射为信号：nil→Ok，ErrNoData→NoData，ErrInvalidInput→InputError，其余→StageError。
func SignalOf(err error) Signal {
	switch {
	case err == nil:
		return SigOk
	case errors.Is(err, contract.ErrNoData):
		return SigNoData
	case errors.Is(err, contract.ErrInvalidInput):
		return SigInputError
	default:
		return SigStageError
	}
}

// Transition: 轨迹中的一步。
type Transition struct {
	From   State
	To     State
	Signal Signal
}

var running = [3]State{Stage1Running, Stage2Running, Stage3Running}

// Next 为纯转移函数。
//   - Idle：Ok 进入阶段一，InputError 进入 InvalidInput；
//   - 阶段中：Ok 前进；NoData 仅阶段一合法；InputError 与其余一律 Failed；
//   - 终态不再转移。
func Next(s State, sig Signal) State {
	switch s {
	case Idle:
		if sig == SigOk {
			return Stage1Running
		}
		if sig == SigInputError {
			return InvalidInput
		}
		return Failed
	case Stage1Running, Stage2Running, Stage3Running:
		switch sig {
		case SigOk:
			switch s {
			case Stage1Running:
				return Stage2Running
			case Stage2Running:
				return Stage3Running
			default:
				return Succeeded
			}
		case SigNoData:
			if s == Stage1Running {
				return NoData
			}
			return Failed
		default:
			return Failed
		}
	default:
		return s
	}
}
