package matrix

import (
	"fmt"
	"strings"
)

// Normalize 将一条原始记录整形为所属用户、日期键与单元格
//
// 用户 ID、排班 ID 为空或日期无法解析时返回 ErrMalformedRecord。
// 上游状态为空或不在枚举内时按签到/签退重新推导。
func Normalize(r Record) (User, DateKey, ShiftCell, error) {
	userID := strings.TrimSpace(r.UserID)
	scheduleID := strings.TrimSpace(r.ScheduleID)
	if userID == "" || scheduleID == "" {
		return User{}, "", ShiftCell{}, ErrMalformedRecord
	}

	date, err := ParseDateKey(strings.TrimSpace(r.Date))
	if err != nil {
		return User{}, "", ShiftCell{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	user := User{
		ID:             userID,
		FullName:       joinName(r.Names, r.Surnames),
		DocumentNumber: strings.TrimSpace(r.DocumentNumber),
	}

	status, ok := ParseShiftStatus(strings.TrimSpace(r.ShiftStatus))
	if !ok {
		status = DeriveStatus(r.CheckIn, r.CheckOut)
	}

	cell := ShiftCell{
		RecordID:      r.ID,
		ScheduleID:    scheduleID,
		ScheduleName:  strings.TrimSpace(r.ScheduleName),
		Status:        status,
		CheckIn:       r.CheckIn,
		CheckOut:      r.CheckOut,
		WorkedMinutes: workedMinutes(r),
		Justification: r.Justification,
		IsVirtual:     r.IsVirtual,
	}
	return user, date, cell, nil
}

// joinName 合并名与姓并折叠空白
func joinName(names, surnames string) string {
	return strings.Join(strings.Fields(names+" "+surnames), " ")
}

// workedMinutes 优先使用上游给出的工时；缺失时按签到签退间隔计算
func workedMinutes(r Record) int {
	if r.HoursWorked > 0 || r.MinutesWorked > 0 {
		return r.HoursWorked*60 + r.MinutesWorked
	}
	if r.CheckIn == nil || r.CheckOut == nil || !r.CheckOut.At.After(r.CheckIn.At) {
		return 0
	}
	return int(r.CheckOut.At.Sub(r.CheckIn.At).Minutes())
}
